package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/sirupsen/logrus"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	_ "github.com/lib/pq"

	"github.com/relabs-tech/provisio/core/access"
	"github.com/relabs-tech/provisio/core/csql"
	"github.com/relabs-tech/provisio/core/idempotency"
	"github.com/relabs-tech/provisio/core/logger"
	"github.com/relabs-tech/provisio/core/tenant"
	"github.com/relabs-tech/provisio/iot/audit"
	"github.com/relabs-tech/provisio/iot/bootstrap"
	"github.com/relabs-tech/provisio/iot/broker"
	"github.com/relabs-tech/provisio/iot/firmware"
)

// Service holds the configuration for this service
//
// use POSTGRES="host=localhost port=5432 user=postgres password=docker dbname=postgres sslmode=disable"
type Service struct {
	Postgres      string        `env:"POSTGRES,optional" description:"the connection string for the Postgres DB, enables the tenant store"`
	RedisAddr     string        `env:"REDIS_ADDR,optional" description:"the redis address for the idempotency cache, in-memory without it"`
	KafkaBrokers  string        `env:"KAFKA_BROKERS,optional" description:"the comma separated kafka brokers for audit events"`
	AuditTopic    string        `env:"AUDIT_TOPIC,default=provisio.audit" description:"the kafka topic for audit events"`
	JwtSecret     string        `env:"JWT_SECRET,required" description:"the HMAC secret for management tokens"`
	SigningKey    string        `env:"SIGNING_KEY,required" description:"the HMAC key signing provisioning responses"`
	Port          int           `env:"PORT,default=3000" description:"the HTTP listen port"`
	BrokerListen  string        `env:"BROKER_LISTEN,default=:1883" description:"the MQTT broker listen address"`
	CredentialTTL time.Duration `env:"CREDENTIAL_TTL,default=24h" description:"the lifetime of broker passwords"`

	S3FirmwareBucket string `env:"S3_FIRMWARE_BUCKET,optional" description:"the S3 bucket with firmware descriptors, enables OTA"`
	S3FirmwareRegion string `env:"S3_FIRMWARE_REGION,optional" description:"the AWS region of the firmware bucket"`
	S3FirmwarePrefix string `env:"S3_FIRMWARE_PREFIX,default=firmware" description:"the key prefix of the firmware descriptors"`
	S3AccessID       string `env:"S3_ACCESS_ID,optional" description:"the AWS access key id"`
	S3AccessKey      string `env:"S3_ACCESS_KEY,optional" description:"the AWS secret access key"`
}

var startedAt = time.Now()

func main() {
	logger.InitLogger(logrus.InfoLevel)

	service := &Service{}
	if err := envdecode.Decode(service); err != nil {
		panic(err)
	}

	router := mux.NewRouter()
	logger.AddRequestID(router)

	var tenantStore tenant.Store
	if service.Postgres != "" {
		db := csql.OpenWithSchema(service.Postgres, "provisio")
		defer db.Close()
		tenantStore = tenant.MustNewSQLStore(db)
	}
	router.Use(tenant.NewMiddleware(&tenant.Builder{Store: tenantStore}))

	router.Use(access.NewJwtMiddleware(&access.JwtMiddlewareBuilder{
		Secret: []byte(service.JwtSecret),
		PublicPaths: []string{
			bootstrap.Path,
			"/healthz",
			"/statusz",
		},
	}))

	var cacheStore idempotency.CacheStore
	if service.RedisAddr != "" {
		cacheStore = idempotency.NewRedisStore(redis.NewClient(&redis.Options{Addr: service.RedisAddr}))
	} else {
		cacheStore = idempotency.NewMemoryStore()
	}
	router.Use(idempotency.NewMiddleware(&idempotency.Builder{Store: cacheStore}))

	var catalog firmware.Catalog
	if service.S3FirmwareBucket != "" {
		s3Catalog, err := firmware.NewS3Catalog(firmware.S3Configuration{
			AWSBucketName: service.S3FirmwareBucket,
			AWSRegion:     service.S3FirmwareRegion,
			AccessID:      service.S3AccessID,
			AccessKey:     service.S3AccessKey,
			KeyPrefix:     service.S3FirmwarePrefix,
		})
		if err != nil {
			panic(err)
		}
		catalog = s3Catalog
	} else {
		catalog = firmware.NewStaticCatalog()
	}

	var auditor bootstrap.Auditor
	if service.KafkaBrokers != "" {
		publisher := audit.NewPublisher(&audit.Builder{
			Brokers: strings.Split(service.KafkaBrokers, ","),
			Topic:   service.AuditTopic,
		})
		defer publisher.Close()
		auditor = publisher
	}

	issuer := bootstrap.NewTransientIssuer(service.CredentialTTL)
	bootstrap.MustNewAPI(&bootstrap.APIBuilder{
		Router: router,
		Service: bootstrap.NewService(&bootstrap.Builder{
			Issuer:     issuer,
			Catalog:    catalog,
			SigningKey: []byte(service.SigningKey),
		}),
		Auditor: auditor,
	})

	checks := map[string]func(context.Context) error{
		"idempotencyCache": func(ctx context.Context) error {
			key := "statusz-" + uuid.New().String()
			if err := cacheStore.Set(ctx, key, []byte("ok"), time.Minute); err != nil {
				return err
			}
			_, err := cacheStore.Get(ctx, key)
			return err
		},
		"firmwareCatalog": func(ctx context.Context) error {
			_, err := catalog.LatestFor(ctx, "sensor")
			return err
		},
	}
	if tenantStore != nil {
		checks["tenantStore"] = func(ctx context.Context) error {
			_, err := tenantStore.FindByID(ctx, "default")
			return err
		}
	}

	router.HandleFunc("/healthz", healthHandler).Methods(http.MethodGet)
	router.HandleFunc("/statusz", newStatusHandler(checks)).Methods(http.MethodGet)

	iotBroker := broker.NewBroker(&broker.Builder{
		Verifier: issuer,
		Listen:   service.BrokerListen,
	})

	cors := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Authorization", "Content-Type", tenant.HeaderTenantID, idempotency.MessageIDHeader}),
	)

	logger.Default().Infof("listen on port :%d", service.Port)
	go func() {
		err := http.ListenAndServe(fmt.Sprintf(":%d", service.Port),
			handlers.CombinedLoggingHandler(os.Stdout,
				cors(handlers.CompressHandler(handlers.RecoveryHandler()(router)))))
		if err != nil {
			logger.Default().WithError(err).Fatalln("Error 4351: http server failed")
		}
	}()

	iotBroker.Run()
}
