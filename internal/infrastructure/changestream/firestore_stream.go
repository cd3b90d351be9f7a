package changestream

import (
	"context"
	"sync"

	"cloud.google.com/go/firestore"

	"otopasar/internal/notify"
	"otopasar/pkg/errors"
)

// NewFirestoreFactory builds a notify.StreamFactory over Firestore snapshot
// listeners. One stream merges every change scope that concerns the user:
// messages addressed to them, offers they made or received, and status
// changes on their chats.
func NewFirestoreFactory(client *firestore.Client) notify.StreamFactory {
	return func(ctx context.Context, userID string) (notify.Stream, error) {
		streamCtx, cancel := context.WithCancel(ctx)

		s := &firestoreStream{
			cancel:  cancel,
			batches: make(chan []notify.Event, 16),
			errs:    make(chan error, 1),
		}

		queries := []scopedQuery{
			{notify.TableMessages, client.CollectionGroup("messages").Where("receiverId", "==", userID)},
			{notify.TableOffers, client.Collection("offers").Where("buyerId", "==", userID)},
			{notify.TableOffers, client.Collection("offers").Where("sellerId", "==", userID)},
			{notify.TableChats, client.Collection("chats").Where("buyerId", "==", userID)},
			{notify.TableChats, client.Collection("chats").Where("sellerId", "==", userID)},
		}

		for _, q := range queries {
			s.wg.Add(1)
			go s.pump(streamCtx, q.table, q.query.Snapshots(streamCtx))
		}

		return s, nil
	}
}

type scopedQuery struct {
	table string
	query firestore.Query
}

type firestoreStream struct {
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	batches chan []notify.Event
	errs    chan error
}

func (s *firestoreStream) pump(ctx context.Context, table string, snaps *firestore.QuerySnapshotIterator) {
	defer s.wg.Done()
	defer snaps.Stop()

	for {
		snap, err := snaps.Next()
		if err != nil {
			if ctx.Err() == nil {
				select {
				case s.errs <- errors.SubscriptionLost("Snapshot listener dropped", err):
				default:
				}
			}
			return
		}

		events := make([]notify.Event, 0, len(snap.Changes))
		for _, change := range snap.Changes {
			events = append(events, notify.Event{
				Kind:  changeKind(change.Kind),
				Table: table,
				ID:    change.Doc.Ref.ID,
			})
		}
		if len(events) == 0 {
			continue
		}

		select {
		case s.batches <- events:
		case <-ctx.Done():
			return
		}
	}
}

func (s *firestoreStream) Next(ctx context.Context) ([]notify.Event, error) {
	select {
	case events := <-s.batches:
		return events, nil
	case err := <-s.errs:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *firestoreStream) Close() error {
	s.cancel()
	s.wg.Wait()
	return nil
}

func changeKind(kind firestore.DocumentChangeKind) notify.EventKind {
	switch kind {
	case firestore.DocumentAdded:
		return notify.EventAdded
	case firestore.DocumentModified:
		return notify.EventModified
	default:
		return notify.EventRemoved
	}
}
