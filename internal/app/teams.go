package app

import (
	"feedback-bot/internal/circuitbreaker"
	"feedback-bot/internal/common/cache"
	commonhttp "feedback-bot/internal/common/http"
	"feedback-bot/internal/common/logging"
	"feedback-bot/internal/crypto"
	"feedback-bot/internal/oauth2"
	"feedback-bot/internal/teams"
)

// initializeTeams builds the connector and Graph clients, each with its own
// credential cache.
func (app *App) initializeTeams() error {
	cfg := app.Config
	logger := logging.GetGlobalLogger()
	app.httpClient = commonhttp.NewHTTPClient(commonhttp.WithTimeout(cfg.HTTPTimeout))

	var encryptor *crypto.ConfigEncryptor
	var err error
	if cfg.EncryptionKey != "" {
		encryptor, err = crypto.NewConfigEncryptor(cfg.EncryptionKey)
	} else {
		encryptor, err = crypto.NewEphemeralEncryptor()
	}
	if err != nil {
		return err
	}

	newCache := func(name, tokenURL, scope string) (*oauth2.CredentialCache, error) {
		opts := []oauth2.Option{
			oauth2.WithHTTPClient(app.httpClient),
			oauth2.WithEncryptor(encryptor),
			oauth2.WithLogger(logger),
		}
		if cfg.CircuitBreakerEnabled {
			opts = append(opts, oauth2.WithCircuitBreaker(
				circuitbreaker.NewGoBreaker(name+"-token", circuitbreaker.TokenConfig, logger)))
		}
		return oauth2.NewCredentialCache(oauth2.Credential{
			TokenURL:     tokenURL,
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Scope:        scope,
		}, opts...)
	}

	newGateway := func(name, baseURL string, tokens teams.TokenSource) *teams.Gateway {
		opts := []teams.GatewayOption{
			teams.WithHTTPClient(app.httpClient),
			teams.WithLogger(logger),
		}
		if cfg.CircuitBreakerEnabled {
			opts = append(opts, teams.WithCircuitBreaker(
				circuitbreaker.NewGoBreaker(name, circuitbreaker.ConnectorConfig, logger)))
		}
		return teams.NewGateway(baseURL, tokens, opts...)
	}

	botTokens, err := newCache("connector", cfg.BotTokenURL, cfg.BotScope)
	if err != nil {
		return err
	}
	graphTokens, err := newCache("graph", cfg.GraphTokenURL, cfg.GraphScope)
	if err != nil {
		return err
	}

	app.Client = teams.NewClient(newGateway("connector", cfg.ServiceURL, botTokens))
	app.Graph = teams.NewGraphClient(newGateway("graph", cfg.GraphBaseURL, graphTokens))

	chatCache, err := app.newChatCache()
	if err != nil {
		return err
	}
	app.Chats = teams.NewCachedChats(app.Graph, chatCache, cfg.ChatCacheTTL, logger)

	app.Logger.Info("Bot connector configured",
		logging.String("service_url", cfg.ServiceURL),
		logging.Bool("circuit_breaker", cfg.CircuitBreakerEnabled))
	return nil
}

// newChatCache shares chat topics through Redis when it is available
func (app *App) newChatCache() (cache.Cache, error) {
	cfg := cache.DefaultConfig()
	cfg.TTL = app.Config.ChatCacheTTL
	if app.RedisClient != nil {
		cfg.Type = cache.TypeRedis
		cfg.RedisClient = app.RedisClient.GetGoRedisClient()
	}
	return cache.New(cfg)
}
