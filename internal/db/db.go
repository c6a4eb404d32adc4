package db

import (
	"context"
	"fmt"
	"time"

	"github.com/avast/retry-go"
	tmdb "github.com/cosmos/cosmos-db"
	"github.com/wx-shi/chainsim/internal/config"
	"github.com/wx-shi/chainsim/internal/model"
	"github.com/wx-shi/chainsim/internal/network"
	"github.com/wx-shi/chainsim/pkg"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	finalKeyPrefix = "f:"
	finalKeyEnd    = "f;"
	StoreRound     = "s:r"
	StoreHeight    = "s:h"

	edbName = "event"
	fdbName = "final"
)

// DB is the simulation trace: every delivered event keyed by
// (round, position) and every finalized ledger block keyed by height.
type DB struct {
	edb    tmdb.DB
	fdb    tmdb.DB
	logger *zap.Logger
}

func NewDB(conf *config.DBConfig, logger *zap.Logger) (*DB, error) {
	edb, err := tmdb.NewDB(conf.Name+"_"+edbName, tmdb.BackendType(conf.DBType), conf.Dir)
	if err != nil {
		return nil, err
	}
	fdb, err := tmdb.NewDB(conf.Name+"_"+fdbName, tmdb.BackendType(conf.DBType), conf.Dir)
	if err != nil {
		edb.Close()
		return nil, err
	}

	return &DB{
		edb:    edb,
		fdb:    fdb,
		logger: logger,
	}, nil
}

func (db *DB) Close() error {
	g, _ := errgroup.WithContext(context.Background())
	g.Go(db.edb.Close)
	g.Go(db.fdb.Close)
	return g.Wait()
}

func eventKey(round uint64, pos int) []byte {
	return append(pkg.Uint64ToBytes(round), pkg.Uint64ToBytes(uint64(pos))...)
}

func finalKey(height uint64) []byte {
	return append([]byte(finalKeyPrefix), pkg.Uint64ToBytes(height)...)
}

// Reset deletes every record so that a run starts from an empty trace.
func (db *DB) Reset() error {
	g, _ := errgroup.WithContext(context.Background())
	g.Go(func() error { return clearDB(db.edb) })
	g.Go(func() error { return clearDB(db.fdb) })
	if err := g.Wait(); err != nil {
		return err
	}
	db.logger.Info("Reset::Info")
	return nil
}

// clearDB collects the keys first: the memdb iterator holds a read lock
// until closed.
func clearDB(d tmdb.DB) error {
	it, err := d.Iterator(nil, nil)
	if err != nil {
		return err
	}
	keys := make([][]byte, 0)
	for ; it.Valid(); it.Next() {
		keys = append(keys, append([]byte(nil), it.Key()...))
	}
	if err := it.Error(); err != nil {
		it.Close()
		return err
	}
	if err := it.Close(); err != nil {
		return err
	}

	wb := d.NewBatch()
	defer wb.Close()
	for _, key := range keys {
		if err := wb.Delete(key); err != nil {
			return err
		}
	}
	return retry.Do(wb.WriteSync, retry.Attempts(3))
}

// StoreEvents writes one drained batch and advances the round checkpoint.
func (db *DB) StoreEvents(round uint64, events []network.Event) error {
	start := time.Now()

	g, _ := errgroup.WithContext(context.Background())
	g.Go(func() error {
		wb := db.edb.NewBatch()
		defer wb.Close()

		for i, event := range events {
			b, err := marshalEvent(event)
			if err != nil {
				return err
			}
			if err := wb.Set(eventKey(round, i), b); err != nil {
				return err
			}
		}
		return retry.Do(wb.WriteSync, retry.Attempts(3))
	})
	g.Go(func() error {
		return db.fdb.SetSync([]byte(StoreRound), pkg.Uint64ToBytes(round))
	})
	if err := g.Wait(); err != nil {
		return err
	}

	db.logger.Debug("StoreEvents::Info",
		zap.Uint64("round", round),
		zap.Int("event_len", len(events)),
		zap.Duration("ttl", time.Since(start)))
	return nil
}

func marshalEvent(event network.Event) ([]byte, error) {
	st, err := structpb.NewStruct(map[string]interface{}{
		"timestamp": float64(event.Timestamp),
		"sender":    float64(event.Sender),
		"receiver":  float64(event.Receiver),
		"content":   event.Message.Content,
	})
	if err != nil {
		return nil, err
	}
	return proto.Marshal(st)
}

func unmarshalEvent(key, val []byte) (*model.Event, error) {
	if len(key) != 16 {
		return nil, fmt.Errorf("invalid event key:%x", key)
	}
	round, err := pkg.BytesToUint64(key[:8])
	if err != nil {
		return nil, err
	}
	st := &structpb.Struct{}
	if err := proto.Unmarshal(val, st); err != nil {
		return nil, err
	}
	f := st.GetFields()
	return &model.Event{
		Round:     round,
		Timestamp: uint64(f["timestamp"].GetNumberValue()),
		Sender:    uint64(f["sender"].GetNumberValue()),
		Receiver:  uint64(f["receiver"].GetNumberValue()),
		Content:   f["content"].GetStringValue(),
	}, nil
}

// GetEvents returns a zero-based page of the trace in delivery order.
func (db *DB) GetEvents(page int, pageSize int) (*model.EventsReply, error) {
	reply := &model.EventsReply{
		Page:     page,
		PageSize: pageSize,
		Events:   make([]*model.Event, 0),
	}

	it, err := db.edb.Iterator(nil, nil)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	first, last := page*pageSize, (page+1)*pageSize
	for ; it.Valid(); it.Next() {
		if reply.TotalSize >= first && reply.TotalSize < last && page >= 0 {
			event, err := unmarshalEvent(it.Key(), it.Value())
			if err != nil {
				return nil, err
			}
			reply.Events = append(reply.Events, event)
		}
		reply.TotalSize++
	}
	return reply, it.Error()
}

func (db *DB) GetStoreRound() (uint64, error) {
	return db.getUint64(StoreRound)
}

func (db *DB) GetStoreHeight() (uint64, error) {
	return db.getUint64(StoreHeight)
}

func (db *DB) getUint64(key string) (uint64, error) {
	val, err := db.fdb.Get([]byte(key))
	if err != nil {
		return 0, err
	}
	if len(val) == 0 {
		return 0, nil
	}
	return pkg.BytesToUint64(val)
}

// StoreFinal appends a finalized block at the next height.
func (db *DB) StoreFinal(block *model.FinalBlock) error {
	st, err := structpb.NewStruct(map[string]interface{}{
		"epoch":    float64(block.Epoch),
		"hash":     block.Hash,
		"parent":   block.Parent,
		"txs":      float64(block.Txs),
		"issuance": block.Issuance,
	})
	if err != nil {
		return err
	}
	b, err := proto.Marshal(st)
	if err != nil {
		return err
	}

	wb := db.fdb.NewBatch()
	defer wb.Close()
	if err := wb.Set(finalKey(block.Height), b); err != nil {
		return err
	}
	if err := wb.Set([]byte(StoreHeight), pkg.Uint64ToBytes(block.Height)); err != nil {
		return err
	}
	return retry.Do(wb.WriteSync, retry.Attempts(3))
}

// GetFinals returns a zero-based page of finalized blocks, lowest height
// first.
func (db *DB) GetFinals(page int, pageSize int) (*model.FinalsReply, error) {
	reply := &model.FinalsReply{
		Page:     page,
		PageSize: pageSize,
		Blocks:   make([]*model.FinalBlock, 0),
	}

	it, err := db.fdb.Iterator([]byte(finalKeyPrefix), []byte(finalKeyEnd))
	if err != nil {
		return nil, err
	}
	defer it.Close()

	blocks := make([]*model.FinalBlock, 0)
	for ; it.Valid(); it.Next() {
		height, err := pkg.BytesToUint64(it.Key()[len(finalKeyPrefix):])
		if err != nil {
			return nil, err
		}
		st := &structpb.Struct{}
		if err := proto.Unmarshal(it.Value(), st); err != nil {
			return nil, err
		}
		f := st.GetFields()
		blocks = append(blocks, &model.FinalBlock{
			Height:   height,
			Epoch:    uint64(f["epoch"].GetNumberValue()),
			Hash:     f["hash"].GetStringValue(),
			Parent:   f["parent"].GetStringValue(),
			Txs:      int(f["txs"].GetNumberValue()),
			Issuance: f["issuance"].GetStringValue(),
		})
	}
	if err := it.Error(); err != nil {
		return nil, err
	}

	reply.TotalSize = len(blocks)
	reply.Blocks = append(reply.Blocks, pkg.Paginate(blocks, page, pageSize)...)
	return reply, nil
}
