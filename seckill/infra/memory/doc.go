// Package memory implementa todos os contratos de domain em memória, com as mesmas
// garantias de atomicidade (mutex no lugar de Lua/transação). Serve para o modo
// MEMORY_MODE e para testes de ponta a ponta; não é indicado para produção.
package memory
