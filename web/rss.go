package web

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/gorilla/feeds"
	"github.com/vidfed/vidfed/db"
	"github.com/vidfed/vidfed/util"
)

const rssFeedSize = 20

// GetVideoFeed renders the newest public local videos as RSS,
// optionally restricted to one account's videos.
func GetVideoFeed(database *db.DB, conf *util.AppConfig, accountName string) (string, error) {
	videos, err := database.ReadRecentPublicVideos(accountName, rssFeedSize)
	if err != nil {
		log.Printf("Feed: Failed to load videos: %v", err)
		return "", errors.New("error retrieving videos")
	}

	title := fmt.Sprintf("%s videos", util.Name)
	author := util.Name
	link := fmt.Sprintf("%s/feeds/videos.xml", conf.BaseUrl())
	if accountName != "" {
		title = fmt.Sprintf("%s videos - %s", util.Name, accountName)
		author = accountName
		link = fmt.Sprintf("%s?accountName=%s", link, accountName)
	}

	feed := &feeds.Feed{
		Title:       title,
		Link:        &feeds.Link{Href: link},
		Description: fmt.Sprintf("Latest public videos on %s", conf.Conf.SslDomain),
		Author:      &feeds.Author{Name: author, Email: fmt.Sprintf("%s@%s", author, conf.Conf.SslDomain)},
		Created:     time.Now(),
	}

	for _, video := range videos {
		feed.Items = append(feed.Items, &feeds.Item{
			Id:      video.Id.String(),
			Title:   video.Name,
			Link:    &feeds.Link{Href: video.Url},
			Content: video.Description,
			Created: video.CreatedAt,
		})
	}

	return feed.ToRss()
}
