// Package app builds the object graph every entry point works with. Nothing here is
// global: callers hold the *App and pass its parts where they are needed.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jcarweb/repuestospro-sub005/internal/audit"
	auditrepo "github.com/jcarweb/repuestospro-sub005/internal/audit/repository"
	"github.com/jcarweb/repuestospro-sub005/internal/config"
	"github.com/jcarweb/repuestospro-sub005/internal/credentials"
	"github.com/jcarweb/repuestospro-sub005/internal/device"
	devicerepo "github.com/jcarweb/repuestospro-sub005/internal/device/repository"
	"github.com/jcarweb/repuestospro-sub005/internal/kv"
	"github.com/jcarweb/repuestospro-sub005/internal/logger"
	"github.com/jcarweb/repuestospro-sub005/internal/policy/engine"
	policyrepo "github.com/jcarweb/repuestospro-sub005/internal/policy/repository"
	"github.com/jcarweb/repuestospro-sub005/internal/security"
	"github.com/jcarweb/repuestospro-sub005/internal/session"
	sessionrepo "github.com/jcarweb/repuestospro-sub005/internal/session/repository"
	"github.com/jcarweb/repuestospro-sub005/internal/telemetry"
	telemetryotel "github.com/jcarweb/repuestospro-sub005/internal/telemetry/otel"
	"github.com/jcarweb/repuestospro-sub005/internal/vault"
	vaultrepo "github.com/jcarweb/repuestospro-sub005/internal/vault/repository"
)

const serviceName = "sessionvault"

// App holds the wired components.
type App struct {
	Config    *config.Config
	Log       *zap.Logger
	Store     kv.Store
	Telemetry *telemetryotel.Providers
	Device    *device.Provider
	Events    *audit.Log
	Policy    engine.Evaluator
	Vault     *vault.Vault
	Auth      *session.AuthClient
	Sessions  *session.Manager
	PIN       *credentials.PIN
	TwoFactor *credentials.TwoFactor
	Biometric *credentials.Biometric

	policyChecker PolicyChecker
}

// Option overrides a component New would otherwise build.
type Option func(*buildOpts)

type buildOpts struct {
	log      *zap.Logger
	store    kv.Store
	hardware credentials.Hardware
}

// WithLogger uses log instead of one built from cfg.
func WithLogger(log *zap.Logger) Option { return func(o *buildOpts) { o.log = log } }

// WithStore uses store instead of opening cfg.StoreBackend. App.Close still closes it.
func WithStore(store kv.Store) Option { return func(o *buildOpts) { o.store = store } }

// WithHardware sets the biometric hardware. Without it biometric enrollment reports
// ErrNoHardware.
func WithHardware(hw credentials.Hardware) Option { return func(o *buildOpts) { o.hardware = hw } }

// New builds an App from cfg. On error every component opened so far is closed.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: nil config")
	}
	var bo buildOpts
	for _, o := range opts {
		o(&bo)
	}

	a := &App{Config: cfg, Log: bo.log}
	if a.Log == nil {
		l, err := logger.New(cfg.Env, cfg.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("logger: %w", err)
		}
		a.Log = l
	}

	fail := func(err error) (*App, error) {
		_ = a.Close(ctx)
		return nil, err
	}

	providers, err := telemetryotel.NewProviders(ctx, cfg.OTelEndpoint, serviceName, cfg.AppVersion, cfg.OTelInsecure, a.Log)
	if err != nil {
		return fail(fmt.Errorf("telemetry: %w", err))
	}
	a.Telemetry = providers
	emitter, err := telemetryotel.NewEventEmitter(providers.LoggerProvider, providers.MeterProvider)
	if err != nil {
		return fail(fmt.Errorf("telemetry: %w", err))
	}

	a.Store = bo.store
	if a.Store == nil {
		store, err := OpenStore(ctx, cfg, a.Log)
		if err != nil {
			return fail(fmt.Errorf("store: %w", err))
		}
		a.Store = store
	}

	a.Device = device.NewProvider(devicerepo.NewKVRepository(a.Store), cfg.DevicePlatform, cfg.AppVersion)
	a.Events = audit.NewLog(auditrepo.NewKVRepository(a.Store),
		audit.WithCapacity(cfg.EventLogCapacity),
		audit.WithDevice(a.Device),
		audit.WithEmitter(emitter),
		audit.WithLogger(a.Log),
	)

	opa := engine.NewOPAEvaluator(policyrepo.NewFileRepository(cfg.PolicyFile), a.Log)
	a.Policy = opa
	a.policyChecker = opa

	kdf := security.KDFParams{
		Algorithm: security.AlgArgon2id,
		Time:      cfg.KDFTime,
		MemoryKiB: cfg.KDFMemoryKiB,
		Threads:   cfg.KDFThreads,
		KeyLen:    security.KeySize,
	}
	if err := kdf.Validate(); err != nil {
		return fail(err)
	}
	a.Vault = vault.New(vaultrepo.NewKVRepository(a.Store),
		vault.WithKDFParams(kdf),
		vault.WithEventRecorder(a.Events),
		vault.WithLogger(a.Log),
	)

	a.Auth = session.NewAuthClient(cfg.AuthBaseURL, cfg.AuthTimeout(), cfg.SessionTTL())
	a.Sessions, err = session.NewManager(session.Options{
		Repo:   sessionrepo.NewKVRepository(a.Store),
		Events: a.Events,
		Detector: audit.Detector{
			Window:             cfg.DetectorWindow(),
			MaxFailedLogins:    cfg.DetectorMaxFailedLogins,
			MaxDistinctDevices: cfg.DetectorMaxDevices,
		},
		Policy:            a.Policy,
		Refresher:         a.Auth,
		Device:            a.Device,
		Logger:            a.Log,
		SessionTTL:        cfg.SessionTTL(),
		InactivityTimeout: cfg.InactivityTimeout(),
		RefreshWindow:     cfg.RefreshWindow(),
		ExpiryGrace:       cfg.ExpiryGrace(),
		RefreshTimeout:    cfg.AuthTimeout(),
	})
	if err != nil {
		return fail(err)
	}

	hw := bo.hardware
	if hw == nil {
		hw = noHardware{}
	}
	a.PIN = credentials.NewPIN(a.Vault)
	a.TwoFactor = credentials.NewTwoFactor(a.Vault, a.Events)
	a.Biometric = credentials.NewBiometric(a.Vault, hw)
	return a, nil
}

// Close releases the store and flushes telemetry. With an OTLP endpoint configured it
// first waits telemetry.ShutdownDrainDuration for in-flight emits. It is safe on a
// partially built App.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.Telemetry != nil && a.Telemetry.Shutdown != nil {
		if a.Config.OTelEndpoint != "" {
			select {
			case <-time.After(telemetry.ShutdownDrainDuration):
			case <-ctx.Done():
			}
		}
		if err := a.Telemetry.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if a.Log != nil {
		_ = a.Log.Sync()
	}
	return errors.Join(errs...)
}

// noHardware is the biometric hardware of a host without a sensor.
type noHardware struct{}

func (noHardware) HasHardware(context.Context) (bool, error) { return false, nil }
func (noHardware) IsEnrolled(context.Context) (bool, error) { return false, nil }
func (noHardware) Authenticate(context.Context, string) (credentials.AuthResult, error) {
	return credentials.AuthResult{}, credentials.ErrNoHardware
}
