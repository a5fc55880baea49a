// Package infra contém as implementações concretas dos contratos de admissão.
//
//   - Store: token bucket por chave (golang.org/x/time/rate) com limpeza periódica
//   - AllocationSlots: vagas para requisições de alocação simultâneas
//   - MemoryStatsStore / RedisStatsStore: contadores allowed/denied
package infra
