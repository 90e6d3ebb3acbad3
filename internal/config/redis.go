package config

// Redis backs the distributed rate limiter.  When the server cannot be
// reached at startup NewRedisClient returns nil and the limiter falls back to
// in-process buckets.

import (
    "context"
    "crypto/tls"
    "time"

    "github.com/redis/go-redis/v9"
)

// RedisConfig holds connection settings.  Addr wins over Host/Port.
type RedisConfig struct {
    Addr     string `koanf:"addr"`
    Host     string `koanf:"host"`
    Port     string `koanf:"port"`
    Password string `koanf:"password"`
    DB       int    `koanf:"db"`
    TLS      bool   `koanf:"tls"`
}

// Configured reports whether any address was supplied.
func (r RedisConfig) Configured() bool {
    return r.Addr != "" || r.Host != ""
}

// Address resolves the host:port to dial.
func (r RedisConfig) Address() string {
    if r.Addr != "" {
        return r.Addr
    }
    port := r.Port
    if port == "" {
        port = "6379"
    }
    return r.Host + ":" + port
}

// NewRedisClient dials Redis and pings it with a short timeout.  It returns
// nil when Redis is not configured or does not answer.
func NewRedisClient(cfg RedisConfig) *redis.Client {
    if !cfg.Configured() {
        return nil
    }
    var tlsConf *tls.Config
    if cfg.TLS {
        tlsConf = &tls.Config{MinVersion: tls.VersionTLS12}
    }
    client := redis.NewClient(&redis.Options{
        Addr:      cfg.Address(),
        Password:  cfg.Password,
        DB:        cfg.DB,
        TLSConfig: tlsConf,
    })
    ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
    defer cancel()
    if err := client.Ping(ctx).Err(); err != nil {
        _ = client.Close()
        return nil
    }
    return client
}
