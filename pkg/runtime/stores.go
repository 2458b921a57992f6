// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package runtime

import (
	"context"
	"fmt"
	"time"

	"github.com/kadirpekel/chatgate/pkg/access"
	"github.com/kadirpekel/chatgate/pkg/config"
	"github.com/kadirpekel/chatgate/pkg/history"
	"github.com/kadirpekel/chatgate/pkg/ratelimit"
	"github.com/kadirpekel/chatgate/pkg/settings"
	"github.com/kadirpekel/chatgate/pkg/users"
)

type stores struct {
	users    users.Store
	contexts history.Store
	settings settings.Store
	access   access.Store
	limiter  ratelimit.RecordStore
}

func (r *Runtime) openStores(ctx context.Context) (*stores, error) {
	cfg := r.config
	st := &stores{}

	if cfg.Storage.IsSQL() {
		dbCfg, err := cfg.StorageDatabase()
		if err != nil {
			return nil, err
		}
		db, err := r.dbPool.Get(ctx, dbCfg)
		if err != nil {
			return nil, err
		}
		dialect := dbCfg.Dialect()

		if st.users, err = users.NewSQLStore(db, dialect); err != nil {
			return nil, fmt.Errorf("users store: %w", err)
		}
		if st.contexts, err = history.NewSQLStore(db, dialect); err != nil {
			return nil, fmt.Errorf("context store: %w", err)
		}
		if st.settings, err = settings.NewSQLStore(db, dialect); err != nil {
			return nil, fmt.Errorf("settings store: %w", err)
		}
		if st.access, err = access.NewSQLStore(db, dialect); err != nil {
			return nil, fmt.Errorf("access store: %w", err)
		}
	} else {
		st.users = users.NewMemoryStore()
		st.contexts = history.NewMemoryStore()
		st.settings = settings.NewMemoryStore()
		st.access = access.NewMemoryStore()
	}

	switch cfg.RateLimit.Store {
	case config.LimiterStoreRedis:
		rc := cfg.RateLimit.Redis
		client, err := ratelimit.DialRedis(ctx, rc.Address, rc.Password, rc.DB)
		if err != nil {
			return nil, err
		}
		r.redis = client
		// Keys outlive the longest window an admin can configure.
		ttl := 2 * time.Duration(settings.MaxRateLimitPeriod) * time.Second
		if st.limiter, err = ratelimit.NewRedisStore(client, ratelimit.WithRedisPrefix(rc.Prefix), ratelimit.WithRedisTTL(ttl)); err != nil {
			return nil, err
		}
	default:
		st.limiter = ratelimit.NewMemoryStore()
	}
	return st, nil
}
