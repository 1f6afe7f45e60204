// Copyright 2026 The restitch Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package rebuild

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/restitch/restitch/internal"
)

const sessionKeyPrefix = "restitch:session:"

// RedisSessionStore checkpoints sessions in Redis so a run interrupted on
// one machine can resume later, or elsewhere. Each session keeps its meta
// under a string key and its placements in a hash, one field per sector
// index valued "addr/conf".
type RedisSessionStore struct {
	rdb redis.UniversalClient
}

// NewRedisSessionStore connects to addr ("host:port/db"). The password
// comes from the URL or the REDIS_PASSWORD environment variable.
func NewRedisSessionStore(driver, addr string) (*RedisSessionStore, error) {
	if driver != "redis" {
		return nil, fmt.Errorf("unsupported metadata driver: %s", driver)
	}
	uri := "redis://" + addr
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("invalid redis address format: %w", err)
	}
	opt, err := redis.ParseURL(u.String())
	if err != nil {
		return nil, fmt.Errorf("could not parse redis URL: %w", err)
	}
	if opt.Password == "" {
		opt.Password = os.Getenv("REDIS_PASSWORD")
	}

	rdb := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    strings.Split(u.Host, ","),
		DB:       opt.DB,
		Password: opt.Password,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to reach redis at %s: %w", internal.RemovePassword(uri), err)
	}
	logger.Infof("session store connected to %s", internal.RemovePassword(uri))
	return &RedisSessionStore{rdb: rdb}, nil
}

func metaKey(id string) string { return sessionKeyPrefix + id + ":meta" }
func mapKey(id string) string  { return sessionKeyPrefix + id + ":map" }

func (s *RedisSessionStore) Create(meta *SessionMeta) error {
	ctx := context.Background()
	val, err := internal.SerializeToString(*meta)
	if err != nil {
		return fmt.Errorf("failed to serialize session meta: %w", err)
	}
	return s.rdb.Set(ctx, metaKey(meta.ID), val, 0).Err()
}

func (s *RedisSessionStore) LoadMeta(id string) (*SessionMeta, error) {
	ctx := context.Background()
	val, err := s.rdb.Get(ctx, metaKey(id)).Result()
	if err == redis.Nil {
		return nil, internal.ErrNoSession
	}
	if err != nil {
		return nil, err
	}
	meta := &SessionMeta{}
	if err := internal.DeserializeFromString(val, meta); err != nil {
		return nil, fmt.Errorf("failed to deserialize session meta: %w", err)
	}
	return meta, nil
}

func (s *RedisSessionStore) SaveEntries(id string, entries []Placement) error {
	if len(entries) == 0 {
		return nil
	}
	ctx := context.Background()
	pipe := s.rdb.Pipeline()
	for _, p := range entries {
		field := strconv.FormatInt(p.Index, 10)
		val := strconv.FormatInt(p.Addr, 10) + "/" + strconv.Itoa(p.Conf)
		pipe.HSet(ctx, mapKey(id), field, val)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// LoadEntries iterates the placement hash with HSCAN so big sessions do
// not block the server.
func (s *RedisSessionStore) LoadEntries(id string) ([]Placement, error) {
	ctx := context.Background()
	if _, err := s.LoadMeta(id); err != nil {
		return nil, err
	}

	var entries []Placement
	iter := s.rdb.HScan(ctx, mapKey(id), 0, "*", 1000).Iterator()
	for iter.Next(ctx) {
		field := iter.Val()
		if !iter.Next(ctx) {
			break
		}
		val := iter.Val()

		p, err := parsePlacement(field, val)
		if err != nil {
			logger.Warnf("skipping malformed session entry %s=%s: %v", field, val, err)
			continue
		}
		entries = append(entries, p)
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *RedisSessionStore) Complete(id string) error {
	return s.Drop(id)
}

func (s *RedisSessionStore) Drop(id string) error {
	ctx := context.Background()
	return s.rdb.Del(ctx, metaKey(id), mapKey(id)).Err()
}

func parsePlacement(field, val string) (Placement, error) {
	index, err := strconv.ParseInt(field, 10, 64)
	if err != nil {
		return Placement{}, err
	}
	addrStr, confStr, ok := strings.Cut(val, "/")
	if !ok {
		return Placement{}, fmt.Errorf("missing confidence separator")
	}
	addr, err := strconv.ParseInt(addrStr, 10, 64)
	if err != nil {
		return Placement{}, err
	}
	conf, err := strconv.Atoi(confStr)
	if err != nil {
		return Placement{}, err
	}
	return Placement{Index: index, Addr: addr, Conf: conf}, nil
}
