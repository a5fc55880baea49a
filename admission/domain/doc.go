// Package domain define os contratos da camada de admissão (load shedding).
//
// Nada aqui conhece estoque, atividades ou net/http: a admissão só decide se uma
// operação protegida pode prosseguir agora, com orçamento independente por chave.
package domain
