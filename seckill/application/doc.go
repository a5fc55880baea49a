// Package application orquestra a venda relâmpago sobre os contratos de domain:
//
//   - Engine: admissão → lock → marcador → decremento atômico → mensagem → resposta
//   - Materializer: consome mensagens, grava o pedido de forma durável e compensa
//   - Reconciler: alinha o contador rápido ao valor durável periodicamente
//   - WarmUp: semeia os contadores a partir do armazenamento durável
//   - OrderService: cancelamento com devolução de estoque
package application
