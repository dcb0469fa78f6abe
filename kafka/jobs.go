package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/EliteSamurai/M4KTABA-sub001/repository"
	"github.com/EliteSamurai/M4KTABA-sub001/service"
)

// JobHandler executes outbox jobs arriving on the job topic. Failures
// feed the retry schedule; the retry budget and DLQ move live in the
// store.
func JobHandler(store *repository.Store, pipe *service.Pipeline, baseBackoff time.Duration) func([]byte) {
	return func(msg []byte) {
		var jm service.JobMessage
		if err := json.Unmarshal(msg, &jm); err != nil {
			log.Printf("❌ invalid job message: %v", err)
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
		defer cancel()

		entry, err := store.GetEntry(ctx, jm.EntryID)
		if errors.Is(err, repository.ErrEntryNotFound) {
			// already done and compacted, or moved to DLQ
			return
		}
		if err != nil {
			log.Printf("❌ failed to load outbox entry %d: %v", jm.EntryID, err)
			return
		}
		if entry.ProcessedAt != nil {
			return
		}

		if err := pipe.ExecuteJob(ctx, *entry); err != nil {
			log.Printf("❌ job %d (%s) failed: %v", entry.ID, entry.Type, err)
			if ferr := store.FailEntry(ctx, entry.ID, err, baseBackoff); ferr != nil {
				log.Printf("❌ failed to record failure for entry %d: %v", entry.ID, ferr)
			}
			return
		}

		if err := store.MarkDone(ctx, entry.ID); err != nil {
			log.Printf("⚠ job %d done but not marked: %v", entry.ID, err)
			return
		}
		log.Printf("✅ job %d (%s) done", entry.ID, entry.Type)
	}
}
