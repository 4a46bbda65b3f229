// Package cachetest 提供基于 go-redis Hook 的内存 Redis 替身，供单元测试使用
package cachetest

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Memory 拦截 go-redis 命令并在内存中执行，支持 PING/GET/SET/DEL
type Memory struct {
	mu     sync.Mutex
	values map[string]string
	ttls   map[string]time.Duration
	// Err 非空时所有命令都返回该错误
	Err error
}

// NewClient 返回一个不连接网络的 redis 客户端及其内存存储
func NewClient() (*redis.Client, *Memory) {
	m := &Memory{
		values: make(map[string]string),
		ttls:   make(map[string]time.Duration),
	}
	client := redis.NewClient(&redis.Options{Addr: "memory:0"})
	client.AddHook(m)
	return client, m
}

// Value 读取原始值
func (m *Memory) Value(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok
}

// TTL 返回写入时设置的过期时间
func (m *Memory) TTL(key string) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ttls[key]
}

// Put 直接写入原始值
func (m *Memory) Put(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
}

func (m *Memory) DialHook(redis.DialHook) redis.DialHook {
	return func(context.Context, string, string) (net.Conn, error) {
		return nil, fmt.Errorf("cachetest: dialing is disabled")
	}
}

func (m *Memory) ProcessHook(redis.ProcessHook) redis.ProcessHook {
	return func(_ context.Context, cmd redis.Cmder) error {
		err := m.process(cmd)
		if err != nil {
			cmd.SetErr(err)
		}
		return err
	}
}

func (m *Memory) ProcessPipelineHook(redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(_ context.Context, cmds []redis.Cmder) error {
		for _, cmd := range cmds {
			if err := m.process(cmd); err != nil {
				cmd.SetErr(err)
				return err
			}
		}
		return nil
	}
}

func (m *Memory) process(cmd redis.Cmder) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return m.Err
	}

	args := cmd.Args()
	switch strings.ToLower(cmd.Name()) {
	case "ping":
		cmd.(*redis.StatusCmd).SetVal("PONG")
	case "get":
		v, ok := m.values[toString(args[1])]
		if !ok {
			return redis.Nil
		}
		cmd.(*redis.StringCmd).SetVal(v)
	case "set":
		key := toString(args[1])
		m.values[key] = toString(args[2])
		delete(m.ttls, key)
		for i := 3; i+1 < len(args); i += 2 {
			n, _ := strconv.ParseInt(toString(args[i+1]), 10, 64)
			switch strings.ToLower(toString(args[i])) {
			case "ex":
				m.ttls[key] = time.Duration(n) * time.Second
			case "px":
				m.ttls[key] = time.Duration(n) * time.Millisecond
			}
		}
		cmd.(*redis.StatusCmd).SetVal("OK")
	case "del":
		var n int64
		for _, a := range args[1:] {
			key := toString(a)
			if _, ok := m.values[key]; ok {
				n++
			}
			delete(m.values, key)
			delete(m.ttls, key)
		}
		cmd.(*redis.IntCmd).SetVal(n)
	default:
		return fmt.Errorf("cachetest: unsupported command %q", cmd.Name())
	}
	return nil
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}
