// Package application contém os casos de uso de admissão: a decisão allow/deny por
// chave (com espera limitada) e a aquisição de vagas com timeout.
//
// Depende apenas do pacote domain. Ex.: Service.Admit(ctx, "allocate:42") responde
// true/false sem nunca bloquear além de WaitTimeout.
package application
