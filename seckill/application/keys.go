package application

import (
	"strconv"
	"time"

	admission "flashsale/admission/domain"
	"flashsale/seckill/domain"
)

// AdmissionKeyPrefix prefixa todas as chaves de AdmissionKey.
const AdmissionKeyPrefix = "allocate:"

// AdmissionKey é a chave de orçamento do endpoint de alocação por atividade.
func AdmissionKey(activityID int64) admission.Key {
	return admission.Key(AdmissionKeyPrefix + strconv.FormatInt(activityID, 10))
}

func lockKey(requesterID, activityID int64) string {
	return "user:" + strconv.FormatInt(requesterID, 10) + ":activity:" + strconv.FormatInt(activityID, 10)
}

// counterTTL mantém o contador vivo até o fim da atividade mais grace.
// Atividade sem fim definido não expira.
func counterTTL(a domain.Activity, now time.Time, grace time.Duration) time.Duration {
	if a.EndAt.IsZero() {
		return 0
	}
	ttl := a.EndAt.Sub(now) + grace
	if ttl < grace {
		return grace
	}
	return ttl
}
