package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/vidfed/vidfed/activitypub"
	"github.com/vidfed/vidfed/db"
	"github.com/vidfed/vidfed/util"
	"github.com/vidfed/vidfed/web"
)

func main() {

	conf, err := util.ReadConf()
	if err != nil {
		log.Fatalln(err)
	}

	fmt.Println("Configuration: ")
	fmt.Println(util.PrettyPrint(conf))

	log.Println("Opening database...")
	database, err := db.Open(util.ResolveFilePath("vidfed.db"))
	if err != nil {
		log.Fatalln(err)
	}
	defer database.Close()

	serverActor, err := activitypub.EnsureServerActor(database, conf)
	if err != nil {
		log.Fatalln(err)
	}

	signer, err := activitypub.ServerSigner(serverActor, conf)
	if err != nil {
		log.Fatalln(err)
	}

	queue := activitypub.NewDBQueue(database)
	federation := activitypub.NewFederation(database, conf, signer, queue)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	worker := activitypub.NewWorker(database)
	federation.RegisterJobHandlers(worker, nil)
	worker.Start(ctx)

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := web.Router(database, conf, federation); err != nil {
			log.Fatalln(err)
		}
	}()

	<-done
	log.Println("Stopping federation server")
	cancel()
}
