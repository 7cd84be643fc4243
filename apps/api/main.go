package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	echoapi "github.com/fyplink/backend/apps/api/echo"
	"github.com/fyplink/backend/core"
	"github.com/fyplink/backend/core/project"
	"github.com/fyplink/backend/core/user"
	emailsvc "github.com/fyplink/backend/services/email"
	eventsvc "github.com/fyplink/backend/services/events"
	logsvc "github.com/fyplink/backend/services/logger"
	"github.com/fyplink/backend/storage/database"
	sqlxrepos "github.com/fyplink/backend/storage/database/sqlx"
)

func main() {
	conf := core.Conf

	// set up loggers
	var logger core.Logger
	if conf.Debug {
		logger = logsvc.NewZapLogger(conf)
	} else {
		logger = logsvc.NewRollbarLogger(
			log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
			conf,
		)
	}

	// set up DB
	db, err := setUpDB(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() { _ = db.Close() }()

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService()
	} else {
		mailSvc = emailsvc.NewSendgridService(logger)
	}

	var events core.EventPublisher
	if len(conf.Kafka.Brokers) > 0 {
		events = eventsvc.NewKafkaPublisher(conf, logger)
	} else {
		events = eventsvc.NewDummyPublisher()
	}
	defer func() { _ = events.Close() }()

	var limiter *echoapi.RedisLimiter
	if conf.Redis.Addr != "" {
		limiter = echoapi.NewRedisLimiter(redis.NewClient(&redis.Options{
			Addr:     conf.Redis.Addr,
			Password: conf.Redis.Password,
		}))
	}

	usrSvc := user.NewService(sqlxrepos.NewUserRepository(db, conf), mailSvc)
	prjSvc := project.NewService(sqlxrepos.NewProjectRepository(db, conf), mailSvc, events)

	// start API server
	logger.Info(fmt.Sprintf("%s API initializing : version %q : env %s", conf.AppName, conf.Build, conf.Env))
	defer logger.Info("Application stopped")

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	server := echoapi.NewServer(&echoapi.Options{
		Address:        conf.Server.Address(),
		UserSvc:        usrSvc,
		ProjectSvc:     prjSvc,
		Logger:         logger,
		Limiter:        limiter,
		SignalShutdown: func() { shutdown <- syscall.SIGTERM },
	})

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- server.Start()
	}()

	select {
	case err = <-serverErrors:
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-shutdown:
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if err = server.Stop(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)
		}
	}
}

func setUpDB(conf *core.Config) (*sql.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}
