package web

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/vidfed/vidfed/activitypub"
	"github.com/vidfed/vidfed/domain"
)

// Inbox accepts inbound federation posts: signature check, flatten,
// structural filter, then hand off to async processing.
type Inbox struct {
	federation *activitypub.Federation
}

func NewInbox(federation *activitypub.Federation) *Inbox {
	return &Inbox{federation: federation}
}

// Handle processes one inbox POST. inboxActorUrl is empty for the
// shared inbox. The response is 204 whenever the batch was accepted for
// processing, even when every activity was dropped by validation: the
// contract is "accepted", not "processed".
func (i *Inbox) Handle(c *gin.Context, inboxActorUrl string) {
	keyId, err := activitypub.SignatureKeyId(c.Request)
	if err != nil {
		log.Printf("Inbox: Missing or malformed signature: %v", err)
		c.Status(http.StatusUnauthorized)
		return
	}
	signerUrl := activitypub.SignatureActorUrl(keyId)

	body, err := c.GetRawData()
	if err != nil {
		log.Printf("Inbox: Failed to read body: %v", err)
		c.Status(http.StatusBadRequest)
		return
	}

	signer, err := i.federation.Resolver.ResolveActor(c.Request.Context(), signerUrl, true, true)
	if err != nil {
		log.Printf("Inbox: Failed to resolve signing actor %s: %v", signerUrl, err)
		c.Status(http.StatusUnauthorized)
		return
	}

	if _, err := activitypub.VerifyRequest(c.Request, signer.PublicKeyPem); err != nil {
		log.Printf("Inbox: Signature verification failed for %s: %v", signer.Url, err)
		c.Status(http.StatusUnauthorized)
		return
	}

	activities := activitypub.FlattenActivities(body)
	valid := activitypub.FilterValidActivities(activities)
	log.Printf("Inbox: Received %d activities from %s, %d valid", len(activities), signer.Url, len(valid))

	if len(valid) > 0 {
		err := i.federation.Queue.Schedule(domain.JobProcessInbox, &activitypub.InboxJobPayload{
			Activities:        valid,
			SignatureActorUrl: signer.Url,
			InboxActorUrl:     inboxActorUrl,
		})
		if err != nil {
			log.Printf("Inbox: Failed to schedule processing: %v", err)
		}
	}

	c.Status(http.StatusNoContent)
}
