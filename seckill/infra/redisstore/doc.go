// Package redisstore implementa o lado rápido do estoque no Redis: contador
// atômico (Lua), lock distribuído com expiração e marcadores de admissão.
//
// Layout de chaves (prefixo padrão "seckill"):
//
//	{prefix}:stock:{activity}          contador
//	{prefix}:user:{activity}:{user}    marcador (pending|rejected)
//	{prefix}:lock:{name}               lock
package redisstore
