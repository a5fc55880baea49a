package redisstore

import (
	"strconv"
	"strings"
)

const DefaultPrefix = "seckill"

type Keys struct {
	prefix string
}

func NewKeys(prefix string) Keys {
	prefix = strings.Trim(prefix, ":")
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return Keys{prefix: prefix}
}

func (k Keys) Stock(activityID int64) string {
	return k.prefix + ":stock:" + strconv.FormatInt(activityID, 10)
}

func (k Keys) Marker(activityID, requesterID int64) string {
	return k.prefix + ":user:" + strconv.FormatInt(activityID, 10) + ":" + strconv.FormatInt(requesterID, 10)
}

func (k Keys) Lock(name string) string {
	return k.prefix + ":lock:" + name
}
