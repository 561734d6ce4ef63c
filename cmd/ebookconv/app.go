package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/local/ebookconv/internal/ai"
	cfgpkg "github.com/local/ebookconv/internal/config"
	"github.com/local/ebookconv/internal/remote"
	"github.com/local/ebookconv/internal/router"
	"github.com/local/ebookconv/internal/storage"
	"github.com/local/ebookconv/internal/store"
)

// app holds the collaborators shared by subcommands.
type app struct {
	cfg     cfgpkg.Config
	redis   *redis.Client
	cloud   *remote.CloudConvert
	calibre *remote.Calibre
	backend *remote.Backend
	status  store.StatusStore

	// usable converters by provider name; every chain shares these so in-flight caps are per provider
	providers map[string]remote.Delegator
	breaker   remote.Breaker
}

func newApp(ctx context.Context, cfg cfgpkg.Config) *app {
	a := &app{cfg: cfg}
	a.redis = connectRedis(ctx, cfg.Redis.URL)

	hc := &http.Client{Timeout: cfg.Remote.RequestTimeout}
	a.cloud = remote.NewCloudConvert(remote.CloudConvertOptions{
		APIKey:       cfg.Remote.CloudConvertKey,
		BaseURL:      cfg.Remote.CloudConvertURL,
		HTTPClient:   hc,
		PollInterval: cfg.Remote.PollInterval,
	})
	a.calibre = remote.NewCalibre(cfg.Remote.CalibreBinary, cfg.Remote.CalibreTimeout)
	if cfg.Remote.BackendURL != "" {
		a.backend = remote.NewBackend(cfg.Remote.BackendURL, hc)
	}
	a.providers = map[string]remote.Delegator{}
	if a.cloud.Configured() {
		a.providers["cloudconvert"] = remote.NewLimited(a.cloud, cfg.Remote.MaxInflight)
	}
	if a.calibre.Available() {
		a.providers["calibre"] = remote.NewLimited(a.calibre, cfg.Remote.MaxInflight)
	}
	if a.backend != nil {
		a.providers["backend"] = a.backend
	}

	if a.redis != nil {
		a.breaker = remote.NewRedisBreaker(a.redis, cfg.Remote.BreakerBaseBackoff, cfg.Remote.BreakerMaxBackoff)
	} else {
		a.breaker = remote.NewMemoryBreaker(cfg.Remote.BreakerBaseBackoff, cfg.Remote.BreakerMaxBackoff)
	}

	if a.redis != nil {
		a.status = store.NewRedisStatusWithClient(a.redis, cfg.Redis.Namespace, cfg.Redis.StatusTTL)
	} else {
		a.status = store.NewMemoryStatus()
	}
	return a
}

// connectRedis returns nil when url is empty or the server cannot be reached.
func connectRedis(ctx context.Context, url string) *redis.Client {
	if url == "" {
		return nil
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		log.Warn().Err(err).Msg("invalid REDIS_URL; continuing without redis")
		return nil
	}
	c := redis.NewClient(opt)
	pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := c.Ping(pctx).Err(); err != nil {
		log.Warn().Err(err).Msg("redis unreachable; continuing without redis")
		_ = c.Close()
		return nil
	}
	return c
}

// delegators builds the failover chain in the configured order, skipping providers
// that are not usable. withBackend is false for the server's own /api/convert chain
// so that a server never delegates to itself.
func (a *app) delegators(order []string, withBackend bool) remote.Delegator {
	var ds []remote.Delegator
	for _, name := range order {
		if name == "backend" && !withBackend {
			continue
		}
		d, ok := a.providers[name]
		if !ok {
			if name != "cloudconvert" && name != "calibre" && name != "backend" {
				log.Warn().Str("provider", name).Msg("unknown remote provider ignored")
			}
			continue
		}
		ds = append(ds, d)
	}
	if len(ds) == 0 {
		return nil
	}
	f := remote.NewFailover(a.breaker, ds...)
	log.Debug().Str("chain", f.Name()).Msg("remote converters configured")
	return f
}

func (a *app) router() *router.Router {
	return router.New(router.Dependencies{Remote: a.delegators(a.cfg.Remote.Providers, true)})
}

func (a *app) s3(ctx context.Context, prefix string) (*storage.S3Client, error) {
	if !a.cfg.S3.Enabled() {
		return nil, fmt.Errorf("S3_BUCKET not configured")
	}
	if prefix == "" {
		prefix = a.cfg.S3.Prefix
	}
	return storage.NewS3Client(ctx, storage.Options{
		Bucket:          a.cfg.S3.Bucket,
		Prefix:          prefix,
		Region:          a.cfg.S3.Region,
		Endpoint:        a.cfg.S3.Endpoint,
		AccessKeyID:     a.cfg.S3.AccessKeyID,
		SecretAccessKey: a.cfg.S3.SecretAccessKey,
		Password:        a.cfg.S3.EncryptPassword,
	})
}

func (a *app) llm() *ai.Registry {
	return ai.Default(ai.Keys{
		OpenAI:    a.cfg.LLM.OpenAIKey,
		Gemini:    a.cfg.LLM.GeminiKey,
		DeepSeek:  a.cfg.LLM.DeepSeekKey,
		DashScope: a.cfg.LLM.DashScopeKey,
		Anthropic: a.cfg.LLM.AnthropicKey,
	}, a.cfg.LLM.Timeout)
}

func (a *app) close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
}
