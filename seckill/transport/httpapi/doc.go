// Package httpapi expõe o motor de alocação via HTTP.
//
// Rotas:
//
//	POST /api/seckill/do                {"user_id":1,"activity_id":2}
//	GET  /api/seckill/result?user_id=1&activity_id=2
//	GET  /api/seckill/stock/{activityId}
//	GET  /api/seckill/activities
//	GET  /api/seckill/orders/{token}
//	POST /api/seckill/orders/{token}/cancel
//	GET  /healthz
//	GET  /metrics
//
// Toda resposta usa o envelope {"code","message","data"}. Resultados de negócio
// respondem 200 com código próprio; throttling responde 429 e falha de
// infraestrutura 503.
//
// Ordem sugerida dos middlewares: rate limit por cliente (fora) e limite de
// concorrência (dentro), este último só na rota de alocação.
package httpapi
