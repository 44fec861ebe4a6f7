package bootstrap

import (
	"github.com/eleven-am/voice-callcenter/internal/callrecord"
	"github.com/eleven-am/voice-callcenter/internal/stats"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

func ProvideCallRecordStore(db *gorm.DB) *callrecord.Store {
	return callrecord.NewStore(db)
}

func ProvideStatsStore(redisClient *redis.Client) *stats.Store {
	return stats.NewStore(redisClient)
}

func RunMigrations(records *callrecord.Store) error {
	return records.Migrate()
}

var StoresModule = fx.Options(
	fx.Provide(
		ProvideCallRecordStore,
		ProvideStatsStore,
	),
	fx.Invoke(RunMigrations),
)
