package webhook

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// SecretTokenHeader carries the secret_token registered with setWebhook.
const SecretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

const (
	secretTokenBytes = 64
	maxUpdateBytes   = 1 << 20
	shutdownTimeout  = 5 * time.Second
)

type UpdateHandler interface {
	HandleUpdate(ctx context.Context, update tgbotapi.Update)
}

// Requester is the part of *tgbotapi.BotAPI used to manage the webhook.
type Requester interface {
	MakeRequest(endpoint string, params tgbotapi.Params) (*tgbotapi.APIResponse, error)
}

// NewSecretToken returns a random hex token for validating inbound pushes.
func NewSecretToken() (string, error) {
	b := make([]byte, secretTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate secret token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Path derives the webhook route from the bot token without exposing it.
func Path(botToken string) string {
	sum := sha256.Sum256([]byte(botToken))
	return "/telegram/" + hex.EncodeToString(sum[:])
}

// URL joins the public domain and the webhook path. A domain without a
// scheme is served over https.
func URL(domain, path string) string {
	domain = strings.TrimRight(strings.TrimSpace(domain), "/")
	if !strings.HasPrefix(domain, "http://") && !strings.HasPrefix(domain, "https://") {
		domain = "https://" + domain
	}
	return domain + path
}

func Register(api Requester, webhookURL, secret string) error {
	params := tgbotapi.Params{}
	params["url"] = webhookURL
	params.AddNonEmpty("secret_token", secret)

	if _, err := api.MakeRequest("setWebhook", params); err != nil {
		return fmt.Errorf("failed to set webhook: %w", err)
	}
	return nil
}

// Unregister removes any webhook so long polling can start.
func Unregister(api Requester) error {
	if _, err := api.MakeRequest("deleteWebhook", tgbotapi.Params{}); err != nil {
		return fmt.Errorf("failed to delete webhook: %w", err)
	}
	return nil
}

type Server struct {
	handler UpdateHandler
	path    string
	secret  string
	logger  *zap.Logger
	srv     *http.Server
}

func NewServer(port int, path, secret string, handler UpdateHandler, logger *zap.Logger) *Server {
	s := &Server{
		handler: handler,
		path:    path,
		secret:  secret,
		logger:  logger,
	}
	s.srv = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: s.Routes(),
	}
	return s
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/", s.health)
	r.Post(s.path, s.receive)
	return r
}

// Run serves until ctx is done, then shuts the server down.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Webhook server is listening", zap.String("address", s.srv.Addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("webhook server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("webhook server forced to shutdown: %w", err)
	}
	return nil
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) receive(w http.ResponseWriter, r *http.Request) {
	got := r.Header.Get(SecretTokenHeader)
	if subtle.ConstantTimeCompare([]byte(got), []byte(s.secret)) != 1 {
		s.logger.Warn("rejected webhook call with bad secret token",
			zap.String("remote_addr", r.RemoteAddr),
			zap.String("request_id", middleware.GetReqID(r.Context())))
		s.respondError(w, http.StatusUnauthorized, "invalid secret token")
		return
	}

	var update tgbotapi.Update
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxUpdateBytes)).Decode(&update); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.logger.Warn("webhook update too large", zap.Int64("limit", tooLarge.Limit))
			s.respondError(w, http.StatusRequestEntityTooLarge, "update too large")
			return
		}
		s.logger.Warn("failed to decode webhook update", zap.Error(err))
		s.respondError(w, http.StatusBadRequest, "invalid update")
		return
	}

	s.handler.HandleUpdate(r.Context(), update)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{
		"error": message,
	})
}
