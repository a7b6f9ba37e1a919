package web

import (
	"fmt"
	"log"
	"strconv"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/render"
	"github.com/vidfed/vidfed/activitypub"
	"github.com/vidfed/vidfed/db"
	"github.com/vidfed/vidfed/util"
	"golang.org/x/time/rate"
)

const activityJson = "application/activity+json; charset=utf-8"

func Router(database *db.DB, conf *util.AppConfig, federation *activitypub.Federation) error {
	log.Printf("Starting federation server on %s:%d", conf.Conf.Host, conf.Conf.HttpPort)
	g := gin.Default()
	g.Use(gzip.Gzip(gzip.DefaultCompression))

	// Global rate limiter: 10 requests per second per IP, burst of 20
	globalLimiter := NewRateLimiter(rate.Limit(10), 20)
	g.Use(RateLimitMiddleware(globalLimiter))

	// Stricter rate limit and a 1MB body cap for federation endpoints
	apLimiter := RateLimitMiddleware(NewRateLimiter(rate.Limit(5), 10))
	maxBodySize := MaxBytesMiddleware(1 * 1024 * 1024)

	inbox := NewInbox(federation)

	g.POST("/inbox", apLimiter, maxBodySize, func(c *gin.Context) {
		log.Println("POST /inbox (shared inbox)")
		inbox.Handle(c, "")
	})

	g.POST("/accounts/:name/inbox", apLimiter, maxBodySize, func(c *gin.Context) {
		name := c.Param("name")
		log.Printf("POST /accounts/%s/inbox", name)
		inbox.Handle(c, fmt.Sprintf("%s/accounts/%s", conf.BaseUrl(), name))
	})

	g.POST("/video-channels/:name/inbox", apLimiter, maxBodySize, func(c *gin.Context) {
		name := c.Param("name")
		log.Printf("POST /video-channels/%s/inbox", name)
		inbox.Handle(c, fmt.Sprintf("%s/video-channels/%s", conf.BaseUrl(), name))
	})

	g.GET("/accounts/:name", func(c *gin.Context) {
		renderActor(c, database, c.Param("name"), false)
	})

	g.GET("/video-channels/:name", func(c *gin.Context) {
		renderActor(c, database, c.Param("name"), true)
	})

	g.GET("/accounts/:name/outbox", func(c *gin.Context) {
		renderOutbox(c, database, c.Param("name"))
	})

	g.GET("/video-channels/:name/outbox", func(c *gin.Context) {
		renderOutbox(c, database, c.Param("name"))
	})

	g.GET("/.well-known/webfinger", func(c *gin.Context) {
		c.Header("Content-Type", "application/jrd+json; charset=utf-8")

		resp, err := GetWebfinger(database, c.Query("resource"), conf)
		if err != nil {
			c.Render(404, render.String{Format: GetWebfingerNotFound()})
		} else {
			c.Render(200, render.String{Format: resp})
		}
	})

	g.GET("/feeds/videos.xml", func(c *gin.Context) {
		c.Header("Content-Type", "application/xml; charset=utf-8")

		rss, err := GetVideoFeed(database, conf, c.Query("accountName"))
		if err != nil {
			c.Render(404, render.String{Format: ""})
		} else {
			c.Render(200, render.String{Format: rss})
		}
	})

	return g.Run(fmt.Sprintf(":%d", conf.Conf.HttpPort))
}

func renderActor(c *gin.Context, database *db.DB, name string, wantChannel bool) {
	c.Header("Content-Type", activityJson)

	doc, err := GetActorDocument(database, name, wantChannel)
	if err != nil {
		c.Render(404, render.String{Format: "{}"})
	} else {
		c.Render(200, render.String{Format: doc})
	}
}

func renderOutbox(c *gin.Context, database *db.DB, name string) {
	c.Header("Content-Type", activityJson)

	page, _ := strconv.Atoi(c.Query("page"))
	size, _ := strconv.Atoi(c.Query("size"))

	body, err := GetOutbox(database, name, page, size)
	if err != nil {
		c.Render(404, render.String{Format: "{}"})
	} else {
		c.Render(200, render.String{Format: body})
	}
}
