// Package stream é o canal at-least-once entre o caminho rápido e o materializador,
// sobre Redis Streams com consumer group.
//
// Cada mensagem confirmada é removida do stream (XACK + XDEL), então XLEN é o
// backlog: mensagens publicadas e ainda não processadas com sucesso. Mensagens que
// excedem o limite de entregas, ou que não podem ser decodificadas, vão para o
// stream de dead-letter.
package stream
