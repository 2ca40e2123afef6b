package http

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/sandeep89846/MarkMe/internal/config"
	"github.com/sandeep89846/MarkMe/internal/domain"
	"github.com/sandeep89846/MarkMe/internal/infra/auth/google"
	"github.com/sandeep89846/MarkMe/internal/infra/auth/token"
	"github.com/sandeep89846/MarkMe/internal/infra/crypto"
	"github.com/sandeep89846/MarkMe/internal/infra/db"
	"github.com/sandeep89846/MarkMe/internal/infra/metrics"
	"github.com/sandeep89846/MarkMe/internal/infra/ratelimit"
	"github.com/sandeep89846/MarkMe/internal/usecase"
)

// TokenVerifier authenticates bearer tokens on protected routes.
type TokenVerifier interface {
	Verify(token string) (domain.Principal, error)
}

type Server struct {
	cfg    config.Config
	store  *db.Store
	r      *gin.Engine
	logger zerolog.Logger

	enroll      *usecase.EnrollmentService
	sessions    *usecase.SessionService
	verify      *usecase.VerifyAttendance
	records     usecase.RecordRepository
	tokens      TokenVerifier
	authInitErr error

	teacherSecret string
	metrics       *metrics.Metrics
	registry      *prometheus.Registry

	rateLimiter       domain.RateLimiter
	rateLimitRequests int
	rateLimitWindow   time.Duration

	now func() time.Time
}

func NewServer(cfg config.Config, store *db.Store, logger zerolog.Logger) *Server {
	r := gin.New()
	r.Use(gin.Recovery())

	s := &Server{cfg: cfg, store: store, r: r, logger: logger, now: time.Now}
	s.initDeps()
	s.routes()
	return s
}

// ServerDeps overrides the wiring for tests.
type ServerDeps struct {
	Enroll      *usecase.EnrollmentService
	Sessions    *usecase.SessionService
	Verify      *usecase.VerifyAttendance
	Records     usecase.RecordRepository
	Tokens      TokenVerifier
	RateLimiter domain.RateLimiter
	Metrics     *metrics.Metrics
	Now         func() time.Time
}

func NewServerWithDeps(cfg config.Config, deps ServerDeps, logger zerolog.Logger) *Server {
	r := gin.New()
	r.Use(gin.Recovery())

	s := &Server{
		cfg:           cfg,
		r:             r,
		logger:        logger,
		enroll:        deps.Enroll,
		sessions:      deps.Sessions,
		verify:        deps.Verify,
		records:       deps.Records,
		tokens:        deps.Tokens,
		teacherSecret: cfg.TeacherSecret,
		metrics:       deps.Metrics,
		now:           deps.Now,
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.initRateLimit(deps.RateLimiter)
	s.routes()
	return s
}

func (s *Server) initDeps() {
	s.teacherSecret = s.cfg.TeacherSecret

	s.registry = prometheus.NewRegistry()
	s.registry.MustRegister(collectors.NewGoCollector())
	s.registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	s.metrics = metrics.New(s.registry)

	loc, err := time.LoadLocation(s.cfg.Timezone)
	if err != nil {
		s.logger.Warn().Str("timezone", s.cfg.Timezone).Msg("unknown timezone, using UTC")
		loc = time.UTC
	}

	var (
		students  *db.StudentRepository
		devices   *db.DeviceRepository
		sessions  *db.SessionRepository
		nonces    *db.NonceRepository
		records   *db.RecordRepository
		timetable *db.TimetableRepository
	)
	if s.store != nil {
		students = db.NewStudentRepository(s.store.DB)
		devices = db.NewDeviceRepository(s.store.DB)
		sessions = db.NewSessionRepository(s.store.DB)
		nonces = db.NewNonceRepository(s.store.DB)
		records = db.NewRecordRepository(s.store.DB)
		timetable = db.NewTimetableRepository(s.store.DB)
	}
	s.records = records

	cryptoSvc := &crypto.Service{}

	tokenManager, err := token.NewManager(s.cfg.SessionTokenSecret, s.cfg.SessionTokenTTL())
	if err != nil {
		s.authInitErr = err
	} else {
		s.tokens = tokenManager
	}

	identity, err := google.NewVerifier(s.cfg)
	if err != nil {
		s.authInitErr = err
	}

	if s.authInitErr == nil {
		s.enroll = &usecase.EnrollmentService{
			Students: students,
			Devices:  devices,
			Crypto:   cryptoSvc,
			Identity: identity,
			Tokens:   tokenManager,
		}
	}
	s.sessions = &usecase.SessionService{
		Students:             students,
		Timetable:            timetable,
		Sessions:             sessions,
		Nonces:               nonces,
		Location:             loc,
		QRRotationIntervalMs: s.cfg.QRRotationIntervalMs,
	}
	s.verify = &usecase.VerifyAttendance{
		Records:           records,
		Devices:           devices,
		Sessions:          sessions,
		Nonces:            nonces,
		Crypto:            cryptoSvc,
		MaxDistanceMeters: s.cfg.GeofenceRadiusMeters,
		MaxNonceAgeMs:     s.cfg.NonceMaxAgeMs,
		Logger:            s.logger,
	}

	s.initRateLimit(nil)
}

func (s *Server) initRateLimit(override domain.RateLimiter) {
	if override != nil {
		s.rateLimiter = override
	}
	if s.rateLimiter == nil && s.cfg.RateLimitRequests > 0 {
		if s.cfg.RedisAddr != "" {
			if limiter, err := ratelimit.NewRedisLimiter(s.cfg.RedisAddr, s.cfg.RedisPassword, s.cfg.RedisDB); err == nil {
				s.rateLimiter = limiter
			}
		}
		if s.rateLimiter == nil {
			s.rateLimiter = ratelimit.NewMemoryLimiter(ratelimit.MemoryConfig{
				MaxKeys: s.cfg.RateLimitMaxKeys,
			})
		}
	}
	s.rateLimitRequests = s.cfg.RateLimitRequests
	s.rateLimitWindow = s.cfg.RateLimitWindow()
}

func (s *Server) routes() {
	s.r.GET("/healthz", s.handleHealthz)
	if s.registry != nil {
		s.r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))
	}

	api := s.r.Group("/api")
	{
		api.GET("/time", s.handleTime)
		api.POST("/auth/google-signin", s.handleGoogleSignIn)
		api.GET("/session/qr", s.handleSessionQR)

		api.GET("/session/current", s.requireAuth, s.handleSessionCurrent)
		api.POST("/attendance/batch", s.requireAuth, s.handleAttendanceBatch)
		api.GET("/student/my-subjects", s.requireAuth, s.handleMySubjects)
		api.GET("/student/my-history", s.requireAuth, s.handleMyHistory)
	}

	s.r.NoRoute(s.handleNoRoute)
}

func (s *Server) Run() error {
	if s.authInitErr != nil {
		return s.authInitErr
	}
	return s.r.Run(s.cfg.HTTPAddr)
}
