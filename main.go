package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/apex/log"
	jsonhandler "github.com/apex/log/handlers/json"
	"github.com/apex/log/handlers/text"
	"github.com/joho/godotenv"

	"sahayak/authority"
	"sahayak/config"
	"sahayak/email"
	"sahayak/gemini"
	"sahayak/handlers"
	"sahayak/llm"
	"sahayak/metrics"
	"sahayak/osm"
	"sahayak/rabbitmq"
	"sahayak/service"
	"sahayak/stubllm"
)

func main() {
	// Values in .env override the process environment.
	if err := godotenv.Overload(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Failed to read .env file")
	}

	cfg := config.Load()
	setupLogging(cfg.LogLevel, cfg.LogFormat)
	metrics.Register()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := authority.NewStore(cfg.AuthoritiesFile)
	if err != nil {
		log.WithError(err).Fatalf("Failed to load authority registry %s", cfg.AuthoritiesFile)
	}
	log.Infof("Loaded %d authorities from %s", store.Registry().Len(), cfg.AuthoritiesFile)
	if cfg.RegistryWatch {
		go func() {
			if err := store.Watch(ctx); err != nil {
				log.WithError(err).Error("Authority registry watcher stopped")
			}
		}()
	}

	var classifier *service.Classifier
	var drafts *service.DraftGenerator
	if client := newLLMClient(ctx, cfg); client != nil {
		classifier = service.NewClassifier(client, service.ImageLimits{
			MaxDimension:   cfg.MaxImageDimension,
			MaxPixels:      cfg.MaxImagePixels,
			MaxUploadBytes: int64(cfg.MaxUploadBytes),
		})
		drafts = service.NewDraftGenerator(client)
	}

	geocoder := osm.NewClient(cfg.NominatimURL, cfg.NominatimUserAgent, cfg.GeocodeTimeout)
	resolver := service.NewResolver(geocoder, store)

	var publisher service.EventPublisher
	if cfg.AMQPURL != "" {
		p, err := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPRoutingKey)
		if err != nil {
			// Events are best-effort; reports are still sent without a broker.
			log.WithError(err).Warn("Failed to initialize RabbitMQ publisher")
		} else {
			defer p.Close()
			publisher = p
		}
	}

	signer := service.NewRecipientSigner(cfg.SecretKey)
	submitter := service.NewSubmitter(store, newMailer(cfg), cfg.SenderEmail, publisher, signer)

	h := handlers.NewHandlers(classifier, drafts, resolver, submitter, store, signer)
	router, err := handlers.SetupRouter(h)
	if err != nil {
		log.WithError(err).Fatal("Failed to set up router")
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Infof("Starting HTTP server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
	}

	log.Info("Server exited")
}

func setupLogging(level, format string) {
	if format == "json" {
		log.SetHandler(jsonhandler.New(os.Stderr))
	} else {
		log.SetHandler(text.New(os.Stderr))
	}
	lvl, err := log.ParseLevel(level)
	if err != nil {
		log.Warnf("Unknown LOG_LEVEL %q, using info", level)
		lvl = log.InfoLevel
	}
	log.SetLevel(lvl)
}

// newLLMClient returns nil when the Gemini key is missing so the AI endpoints can
// report API_KEY_NOT_FOUND instead of failing at startup.
func newLLMClient(ctx context.Context, cfg *config.Config) llm.Client {
	if cfg.LLMProvider == "stub" {
		log.Warn("Using the stub LLM provider; classifications and drafts are synthetic")
		return stubllm.NewClient()
	}

	client, err := gemini.NewClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	if err != nil {
		log.WithError(err).Warn("AI service unavailable; /analyze and /generate_drafts will answer API_KEY_NOT_FOUND")
		return nil
	}
	log.Infof("LLM provider=%s model=%s", client.SourceName(), cfg.GeminiModel)
	return client
}

// newMailer returns nil when sender credentials are incomplete.
func newMailer(cfg *config.Config) service.Mailer {
	if !cfg.HasSenderCredentials() {
		log.Warn("Sender credentials not configured; /submit_report will answer SENDER_CREDENTIALS_NOT_FOUND")
		return nil
	}

	if cfg.MailTransport() == email.TransportSendGrid {
		return email.NewSendGridMailer(cfg.SendGridAPIKey, "Sahayak", "")
	}

	m, err := email.NewSMTPMailer(email.SMTPConfig{
		Host:     cfg.MailServer,
		Port:     cfg.MailPort,
		Username: cfg.SenderEmail,
		Password: cfg.SenderPassword,
		StartTLS: cfg.MailUseTLS,
	})
	if err != nil {
		log.WithError(err).Error("Invalid SMTP configuration")
		return nil
	}
	return m
}
