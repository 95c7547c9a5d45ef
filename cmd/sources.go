package main

import (
	"context"
	"fmt"
	"time"

	"github.com/desertthunder/nostodon/internal/models"
	"github.com/desertthunder/nostodon/internal/repositories"
	"github.com/desertthunder/nostodon/internal/server"
	"github.com/desertthunder/nostodon/internal/services"
	"github.com/desertthunder/nostodon/internal/shared"
	"github.com/urfave/cli/v3"
)

const authTimeout = 2 * time.Minute

// sourceView is the JSON shape of a stored source. Secrets are reduced to whether they are set.
type sourceView struct {
	InstanceURL string    `json:"instance_url"`
	RedirectURL string    `json:"redirect_url,omitempty"`
	HasClient   bool      `json:"has_client_credentials"`
	HasToken    bool      `json:"has_token"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func instanceArg(cmd *cli.Command) (string, error) {
	raw := cmd.Args().First()
	if raw == "" {
		return "", fmt.Errorf("%w: instance url", shared.ErrMissingArgument)
	}
	u, err := shared.InstanceURL(raw)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

// SourcesAdd stores credentials for an instance, replacing any existing entry.
func (r *Runner) SourcesAdd(ctx context.Context, cmd *cli.Command) error {
	instanceURL, err := instanceArg(cmd)
	if err != nil {
		return err
	}

	src := models.Source{
		InstanceURL:  instanceURL,
		ClientKey:    cmd.String("client-key"),
		ClientSecret: cmd.String("client-secret"),
		RedirectURL:  cmd.String("redirect-url"),
		Token:        cmd.String("token"),
	}
	if _, err := services.NewMastodonSource(src); err != nil {
		return err
	}

	db, err := r.openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	saved, err := repositories.NewSourceRepository(db).Save(ctx, src)
	if err != nil {
		return err
	}

	r.logger.Info("source saved", "instance_url", saved.InstanceURL)
	r.writePlain("✓ Saved %s\n", saved.InstanceURL)
	if saved.Token == "" {
		r.writePlain("Run 'nostodon sources auth %s' to authorize a user token\n", saved.InstanceURL)
	}
	return nil
}

// SourcesList prints stored sources without their secrets.
func (r *Runner) SourcesList(ctx context.Context, cmd *cli.Command) error {
	db, err := r.openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	sources, err := repositories.NewSourceRepository(db).List(ctx)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		views := make([]sourceView, 0, len(sources))
		for _, src := range sources {
			views = append(views, sourceView{
				InstanceURL: src.InstanceURL,
				RedirectURL: src.RedirectURL,
				HasClient:   src.ClientKey != "" && src.ClientSecret != "",
				HasToken:    src.Token != "",
				UpdatedAt:   src.UpdatedAt,
			})
		}
		return r.writeJSON(views, true)
	}

	if len(sources) == 0 {
		return r.writePlain("No sources.\n")
	}

	r.writePlainHeader(fmt.Sprintf("Sources (%d)", len(sources)))
	for _, src := range sources {
		auth := "client credentials"
		if src.Token != "" {
			auth = "token"
		}
		r.writePlain("%s  [%s]\n", src.InstanceURL, auth)
	}
	return nil
}

// SourcesRemove deletes a stored source.
func (r *Runner) SourcesRemove(ctx context.Context, cmd *cli.Command) error {
	instanceURL, err := instanceArg(cmd)
	if err != nil {
		return err
	}

	db, err := r.openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	if err := repositories.NewSourceRepository(db).Remove(ctx, instanceURL); err != nil {
		return err
	}

	r.logger.Info("source removed", "instance_url", instanceURL)
	return r.writePlain("✓ Removed %s\n", instanceURL)
}

// SourcesAuth runs the authorization code flow for a source and stores the resulting token.
//
// The callback is served on the configured server address, which must match the source's redirect URL.
func (r *Runner) SourcesAuth(ctx context.Context, cmd *cli.Command) error {
	instanceURL, err := instanceArg(cmd)
	if err != nil {
		return err
	}

	db, err := r.openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	repo := repositories.NewSourceRepository(db)
	src, err := r.findSource(ctx, repo, instanceURL)
	if err != nil {
		return err
	}
	if src.ClientKey == "" || src.ClientSecret == "" {
		return fmt.Errorf("%w: %s needs a client key and secret to authorize", shared.ErrMissingCredentials, instanceURL)
	}

	// A stored token would short-circuit the source's token source; the flow replaces it anyway.
	src.Token = ""
	source, err := services.NewMastodonSource(src)
	if err != nil {
		return err
	}

	token, err := r.doOAuth(ctx, source, cmd.Duration("timeout"), !cmd.Bool("no-browser"))
	if err != nil {
		return err
	}

	// Sources that only exist in the config file are copied into the database with their token.
	if src.ID != "" {
		err = repo.UpdateToken(ctx, src.InstanceURL, token)
	} else {
		src.Token = token
		_, err = repo.Save(ctx, src)
	}
	if err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}

	r.logger.Info("source authorized", "instance_url", instanceURL)
	r.writePlain("✓ Authorized %s\n", instanceURL)
	return nil
}

// findSource looks up credentials in the database first, then in the config file.
func (r *Runner) findSource(ctx context.Context, repo *repositories.SourceRepository, instanceURL string) (models.Source, error) {
	stored, err := repo.List(ctx)
	if err != nil {
		return models.Source{}, err
	}
	for _, src := range stored {
		if shared.NormalizeInstanceURL(src.InstanceURL) == instanceURL {
			return src, nil
		}
	}

	for _, sc := range r.config.Sources {
		if shared.NormalizeInstanceURL(sc.InstanceURL) == instanceURL {
			return models.Source{
				InstanceURL:  instanceURL,
				ClientKey:    sc.ClientKey,
				ClientSecret: sc.ClientSecret,
				RedirectURL:  sc.RedirectURL,
				Token:        sc.Token,
			}, nil
		}
	}

	return models.Source{}, fmt.Errorf("%w: source %s, add it with 'nostodon sources add'", shared.ErrNotFound, instanceURL)
}

func (r *Runner) doOAuth(ctx context.Context, oauthSrv services.OAuthService, timeout time.Duration, openBrowser bool) (string, error) {
	state, err := shared.GenerateState()
	if err != nil {
		return "", fmt.Errorf("failed to generate state token: %w", err)
	}

	authURL := oauthSrv.GetAuthURL(state)
	oauthHandler := server.NewOAuthHandler(oauthSrv, state)
	router := server.NewBasicRouter()
	router.Use(server.Logging(r.logger))
	router.Handler(oauthHandler)

	serveCtx, stopServer := context.WithCancel(ctx)
	defer stopServer()

	srv := server.New(r.config.Server.Addr(), router)
	serverErrors := make(chan error, 1)
	go func() {
		r.logger.Infof("starting OAuth callback server at %v", srv.Addr)
		serverErrors <- server.Serve(serveCtx, srv)
	}()

	if openBrowser {
		r.writePlain("→ Opening browser for authorization...\n")
		if err := shared.OpenBrowser(authURL); err != nil {
			r.logger.Warnf("failed to open browser automatically %v", err)
			r.writePlainln("⚠ Could not open browser automatically.")
			r.writePlain("Please open this URL in your browser:\n%s\n\n", authURL)
		}
	} else {
		r.writePlain("Open this URL in your browser:\n%s\n\n", authURL)
	}

	r.writePlain("→ Waiting for authorization (%v timeout)...\n", timeout)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var result server.OAuthResult
	select {
	case result = <-oauthHandler.Result():
	case err := <-serverErrors:
		if err == nil {
			err = ctx.Err()
		}
		return "", fmt.Errorf("server error: %w", err)
	case <-timer.C:
		return "", fmt.Errorf("%w: authorization timed out after %v", shared.ErrTimeout, timeout)
	case <-ctx.Done():
		return "", ctx.Err()
	}

	stopServer()
	if err := <-serverErrors; err != nil {
		r.logger.Warn("error shutting down server", "error", err)
	}

	if result.Err != nil {
		return "", fmt.Errorf("authorization failed: %w", result.Err)
	}
	if result.Token == nil || result.Token.AccessToken == "" {
		return "", fmt.Errorf("%w: no access token received", shared.ErrAuthFailed)
	}
	return result.Token.AccessToken, nil
}
