// Package domain define os tipos da venda relâmpago (atividade, mensagem de alocação,
// pedido, decisão) e os contratos dos colaboradores externos: contador atômico,
// exclusão mútua, marcador de admissão, canal de mensagens e armazenamento durável.
//
// Não depende de Redis, Postgres nem net/http.
package domain
