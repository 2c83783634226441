package app

import (
	"feedback-bot/internal/auth"
	"feedback-bot/internal/common/logging"
)

func (app *App) initializeAuth() error {
	if !app.Config.AuthEnabled {
		app.Logger.Warn("Inbound token validation disabled (BOT_AUTH_ENABLED=false)")
		return nil
	}

	authenticator, err := auth.NewBotAuthenticator(auth.Config{
		KeysURL:  app.Config.OpenIDKeysURL,
		Issuer:   app.Config.TokenIssuer,
		Audience: app.Config.ClientID,
	}, auth.WithHTTPClient(app.httpClient), auth.WithLogger(logging.GetGlobalLogger()))
	if err != nil {
		return err
	}
	app.Authenticator = authenticator
	app.Logger.Info("Inbound token validation enabled", logging.String("issuer", app.Config.TokenIssuer))
	return nil
}
