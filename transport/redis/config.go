package redis

import (
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const defaultPort = "6379"

// ignoredOptions are StackExchange.Redis keywords that have no go-redis
// counterpart and are accepted without effect.
var ignoredOptions = map[string]struct{}{
	"abortconnect": {},
	"allowadmin":   {},
	"connectretry": {},
	"keepalive":    {},
	"resolvedns":   {},
	"version":      {},
}

// ParseConnectionString accepts either a redis:// / rediss:// URL or a
// StackExchange.Redis style string:
//
//	host1:6379,host2:6379,password=secret,ssl=true,defaultDatabase=2
//
// Several endpoints must say what they are: serviceName selects sentinel and
// cluster=true selects Redis Cluster. A plain primary/replica list is
// rejected, since go-redis would treat it as a cluster.
func ParseConnectionString(cs string) (*goredis.UniversalOptions, error) {
	cs = strings.TrimSpace(cs)
	if cs == "" {
		return nil, fmt.Errorf("empty redis connection string")
	}

	lower := strings.ToLower(cs)
	if strings.HasPrefix(lower, "redis://") || strings.HasPrefix(lower, "rediss://") {
		return parseURL(cs)
	}
	return parseStackExchange(cs)
}

func parseURL(cs string) (*goredis.UniversalOptions, error) {
	parsed, err := goredis.ParseURL(cs)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &goredis.UniversalOptions{
		Addrs:        []string{parsed.Addr},
		DB:           parsed.DB,
		Username:     parsed.Username,
		Password:     parsed.Password,
		TLSConfig:    parsed.TLSConfig,
		ClientName:   parsed.ClientName,
		DialTimeout:  parsed.DialTimeout,
		ReadTimeout:  parsed.ReadTimeout,
		WriteTimeout: parsed.WriteTimeout,
		Protocol:     parsed.Protocol,
	}, nil
}

func parseStackExchange(cs string) (*goredis.UniversalOptions, error) {
	opts := &goredis.UniversalOptions{}
	cluster := false

	for _, part := range strings.Split(cs, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		key, value, isOption := strings.Cut(part, "=")
		if !isOption {
			opts.Addrs = append(opts.Addrs, withDefaultPort(part))
			continue
		}

		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		switch key {
		case "password":
			opts.Password = value
		case "user":
			opts.Username = value
		case "name":
			opts.ClientName = value
		case "servicename":
			opts.MasterName = value
		case "cluster":
			enabled, err := strconv.ParseBool(value)
			if err != nil {
				return nil, fmt.Errorf("invalid cluster %q", value)
			}
			cluster = enabled
		case "defaultdatabase":
			db, err := strconv.Atoi(value)
			if err != nil || db < 0 {
				return nil, fmt.Errorf("invalid defaultDatabase %q", value)
			}
			opts.DB = db
		case "ssl":
			enabled, err := strconv.ParseBool(value)
			if err != nil {
				return nil, fmt.Errorf("invalid ssl %q", value)
			}
			if enabled && opts.TLSConfig == nil {
				opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
			}
		case "sslhost":
			if opts.TLSConfig == nil {
				opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
			}
			opts.TLSConfig.ServerName = value
		case "connecttimeout":
			d, err := parseMillis(value)
			if err != nil {
				return nil, fmt.Errorf("invalid connectTimeout %q", value)
			}
			opts.DialTimeout = d
		case "synctimeout":
			d, err := parseMillis(value)
			if err != nil {
				return nil, fmt.Errorf("invalid syncTimeout %q", value)
			}
			opts.ReadTimeout = d
			opts.WriteTimeout = d
		default:
			if _, ok := ignoredOptions[key]; !ok {
				return nil, fmt.Errorf("unsupported redis connection option %q", key)
			}
		}
	}

	if len(opts.Addrs) == 0 {
		return nil, fmt.Errorf("redis connection string has no endpoints")
	}
	if len(opts.Addrs) > 1 && opts.MasterName == "" && !cluster {
		return nil, fmt.Errorf("redis connection string lists %d endpoints: set serviceName for sentinel or cluster=true for Redis Cluster", len(opts.Addrs))
	}
	if cluster && opts.MasterName != "" {
		return nil, fmt.Errorf("redis connection string sets both serviceName and cluster")
	}
	if cluster && opts.DB != 0 {
		return nil, fmt.Errorf("redis cluster supports only database 0")
	}
	return opts, nil
}

func withDefaultPort(addr string) string {
	if _, _, err := net.SplitHostPort(addr); err == nil {
		return addr
	}
	return net.JoinHostPort(addr, defaultPort)
}

func parseMillis(v string) (time.Duration, error) {
	ms, err := strconv.Atoi(v)
	if err != nil || ms < 0 {
		return 0, fmt.Errorf("not a millisecond count")
	}
	return time.Duration(ms) * time.Millisecond, nil
}
