package main

import (
	"fmt"
	"log"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	echoapi "github.com/trezcool/gradebook/apps/api/echo"
	"github.com/trezcool/gradebook/core"
	"github.com/trezcool/gradebook/core/gradebook"
	emailsvc "github.com/trezcool/gradebook/services/email"
	logsvc "github.com/trezcool/gradebook/services/logger"
	regsvc "github.com/trezcool/gradebook/services/registration"
	"github.com/trezcool/gradebook/storage/database"
	sqlxrepos "github.com/trezcool/gradebook/storage/database/sqlx"
)

func main() {
	conf := core.Conf

	// set up loggers
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	// set up DB
	if err := database.CreateIfNotExist(conf); err != nil {
		logger.Fatal(fmt.Sprintf("creating database: %v", err), err)
	}
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}
	defer db.Close()
	if err = database.Migrate(db.DB); err != nil {
		logger.Fatal(fmt.Sprintf("migrating database: %v", err), err)
	}

	// set up services
	var mailSvc core.EmailService
	var registrationSvc gradebook.RegistrationService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService()
		registrationSvc = regsvc.NewConsoleService(
			log.New(os.Stdout, "REGISTRATION : ", log.LstdFlags|log.Lmicroseconds),
		)
	} else {
		mailSvc = emailsvc.NewSendgridService(logger)
		registrationSvc = regsvc.NewRESTService(conf, logger)
	}
	gbSvc := gradebook.NewService(sqlxrepos.NewGradebookRepository(db), registrationSvc, mailSvc)

	// set up validation
	validate := validator.New()
	translator := newTranslator()
	core.InitValidators(validate, translator)

	logger.Info(fmt.Sprintf("%s API initializing", conf.AppName))
	defer logger.Info("Application stopped")

	// start API server
	app := echoapi.NewServer(
		&echoapi.Options{
			Addr:         conf.Server.Address(),
			GradebookSvc: gbSvc,
			Validate:     validate,
			Translator:   translator,
			Logger:       logger,
		},
	)
	app.Start()
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}
