// Package postgres é o armazenamento durável (fonte da verdade) de atividades e
// pedidos. Toda mutação de estoque é uma única instrução condicional; a
// transação é propagada via ctx, então repositórios diferentes compartilham a
// mesma transação dentro de WithTx.
package postgres
