// Package sessionlock implements the distributed single-active-session guard.
// Every operation is a single Lua script round trip against the shared store;
// application code never does read-then-write on these keys.
package sessionlock

import (
	"context"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/mindpath-backend/internal/logger"
)

// Result reports a claim decision. When Granted is false the Existing fields
// name the conflicting session so the caller can offer a forced takeover.
type Result struct {
	Granted          bool
	ExistingRoomID   string
	ExistingConnID   string
	ExistingInstance string
}

type Service interface {
	Claim(ctx context.Context, userID, roomID, connID string) (Result, error)
	ForceClaim(ctx context.Context, userID, roomID, connID string) (Result, error)
	Refresh(ctx context.Context, userID, connID, roomID string) (bool, error)
	Release(ctx context.Context, userID, connID string) (bool, error)
}

// claimScript grants when no record exists or when the stored connection id
// matches (reconnect/refresh). Any other owner is a denial and the script
// returns the owner so nothing needs a second round trip.
var claimScript = goredis.NewScript(`
local key = KEYS[1]
local conn = redis.call('HGET', key, 'connectionId')
if conn and conn ~= ARGV[1] then
  local room = redis.call('HGET', key, 'roomId') or ''
  local inst = redis.call('HGET', key, 'serverInstanceId') or ''
  return {0, room, conn, inst}
end
redis.call('HSET', key, 'connectionId', ARGV[1], 'roomId', ARGV[2], 'serverInstanceId', ARGV[3], 'updatedAt', ARGV[4])
redis.call('PEXPIRE', key, ARGV[5])
return {1, '', '', ''}
`)

// forceClaimScript overwrites unconditionally and returns the previous owner
// so the caller can terminate that connection.
var forceClaimScript = goredis.NewScript(`
local key = KEYS[1]
local room = redis.call('HGET', key, 'roomId') or ''
local conn = redis.call('HGET', key, 'connectionId') or ''
local inst = redis.call('HGET', key, 'serverInstanceId') or ''
redis.call('HSET', key, 'connectionId', ARGV[1], 'roomId', ARGV[2], 'serverInstanceId', ARGV[3], 'updatedAt', ARGV[4])
redis.call('PEXPIRE', key, ARGV[5])
return {1, room, conn, inst}
`)

// refreshScript extends the TTL only while the stored connection id still
// matches, so a stale heartbeat cannot resurrect a session another process
// just took over.
var refreshScript = goredis.NewScript(`
local key = KEYS[1]
local conn = redis.call('HGET', key, 'connectionId')
if not conn or conn ~= ARGV[1] then
  return 0
end
redis.call('HSET', key, 'roomId', ARGV[2], 'updatedAt', ARGV[3])
redis.call('PEXPIRE', key, ARGV[4])
return 1
`)

var releaseScript = goredis.NewScript(`
local key = KEYS[1]
local conn = redis.call('HGET', key, 'connectionId')
if not conn or conn ~= ARGV[1] then
  return 0
end
redis.call('DEL', key)
return 1
`)

type service struct {
	log        *logger.Logger
	rdb        goredis.Scripter
	namespace  string
	instanceID string
	ttl        time.Duration
}

func New(log *logger.Logger, rdb goredis.Scripter, namespace, instanceID string, ttl time.Duration) Service {
	return &service{
		log:        log.With("service", "SessionLock"),
		rdb:        rdb,
		namespace:  namespace,
		instanceID: instanceID,
		ttl:        ttl,
	}
}

func (s *service) key(userID string) string {
	return s.namespace + ":user-active-session:" + userID
}

func (s *service) Claim(ctx context.Context, userID, roomID, connID string) (Result, error) {
	raw, err := claimScript.Run(ctx, s.rdb, []string{s.key(userID)},
		connID, roomID, s.instanceID, now(), s.ttl.Milliseconds()).Result()
	if err != nil {
		return Result{}, fmt.Errorf("session claim: %w", err)
	}
	return parseResult(raw)
}

func (s *service) ForceClaim(ctx context.Context, userID, roomID, connID string) (Result, error) {
	raw, err := forceClaimScript.Run(ctx, s.rdb, []string{s.key(userID)},
		connID, roomID, s.instanceID, now(), s.ttl.Milliseconds()).Result()
	if err != nil {
		return Result{}, fmt.Errorf("session force claim: %w", err)
	}
	return parseResult(raw)
}

func (s *service) Refresh(ctx context.Context, userID, connID, roomID string) (bool, error) {
	raw, err := refreshScript.Run(ctx, s.rdb, []string{s.key(userID)},
		connID, roomID, now(), s.ttl.Milliseconds()).Result()
	if err != nil {
		return false, fmt.Errorf("session refresh: %w", err)
	}
	n, ok := raw.(int64)
	return ok && n == 1, nil
}

func (s *service) Release(ctx context.Context, userID, connID string) (bool, error) {
	raw, err := releaseScript.Run(ctx, s.rdb, []string{s.key(userID)}, connID).Result()
	if err != nil {
		return false, fmt.Errorf("session release: %w", err)
	}
	n, ok := raw.(int64)
	return ok && n == 1, nil
}

func now() string {
	return strconv.FormatInt(time.Now().UnixMilli(), 10)
}

func parseResult(raw interface{}) (Result, error) {
	arr, ok := raw.([]interface{})
	if !ok || len(arr) < 4 {
		return Result{}, fmt.Errorf("unexpected script reply: %v", raw)
	}
	granted, _ := arr[0].(int64)
	return Result{
		Granted:          granted == 1,
		ExistingRoomID:   asString(arr[1]),
		ExistingConnID:   asString(arr[2]),
		ExistingInstance: asString(arr[3]),
	}, nil
}

func asString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
