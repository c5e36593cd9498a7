// Package history persists served predictions and their eventual
// realized outcomes. The log feeds performance-drift checks and the
// new-order counters used by retrain scheduling.
package history

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	cerr "github.com/codguard/codguard/common/errors"
	"github.com/codguard/codguard/internal/dataset"
	"github.com/codguard/codguard/internal/drift"
)

// PredictionLog is one served prediction. ActualRTO stays NULL until
// the order's delivery outcome arrives.
type PredictionLog struct {
	ID           string    `gorm:"primaryKey;size:36"`
	OrderID      string    `gorm:"index;size:64;not null"`
	ModelVersion string    `gorm:"index;size:32;not null"`
	Probability  float64   `gorm:"not null"`
	PredictedRTO int       `gorm:"not null"`
	ActualRTO    *int      `gorm:""`
	Features     string    `gorm:"type:text"`
	CreatedAt    time.Time `gorm:"index;not null"`
}

// Store wraps the prediction log database.
type Store struct {
	db  *gorm.DB
	log *zap.SugaredLogger
	now func() time.Time
}

// Open opens (creating if needed) the sqlite database at path and
// migrates the schema.
func Open(path string, log *zap.SugaredLogger) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, cerr.Wrap(cerr.KindTransientInfra, err, "open history db")
	}
	if err := db.AutoMigrate(&PredictionLog{}); err != nil {
		return nil, cerr.Wrap(cerr.KindTransientInfra, err, "migrate history db")
	}
	return &Store{db: db, log: log, now: time.Now}, nil
}

// Record stores one served prediction and returns its id.
func (s *Store) Record(orderID, modelVersion string, probability, threshold float64, features map[string]float64) (string, error) {
	predicted := 0
	if probability >= threshold {
		predicted = 1
	}
	encoded, err := json.Marshal(features)
	if err != nil {
		return "", cerr.Wrap(cerr.KindTransientInfra, err, "encode features")
	}

	row := PredictionLog{
		ID:           uuid.NewString(),
		OrderID:      orderID,
		ModelVersion: modelVersion,
		Probability:  probability,
		PredictedRTO: predicted,
		Features:     string(encoded),
		CreatedAt:    s.now().UTC(),
	}
	if err := s.db.Create(&row).Error; err != nil {
		return "", cerr.Wrap(cerr.KindTransientInfra, err, "insert prediction")
	}
	return row.ID, nil
}

// RecordOutcome attaches the realized RTO outcome to every logged
// prediction for the order. Returns the number of rows updated.
func (s *Store) RecordOutcome(orderID string, actualRTO int) (int64, error) {
	res := s.db.Model(&PredictionLog{}).
		Where("order_id = ?", orderID).
		Update("actual_rto", actualRTO)
	if res.Error != nil {
		return 0, cerr.Wrap(cerr.KindTransientInfra, res.Error, "update outcome")
	}
	if res.RowsAffected == 0 {
		return 0, cerr.Ef(cerr.KindNotFound, "no predictions logged for order %s", orderID)
	}
	return res.RowsAffected, nil
}

// LabeledPairs returns predictions with known outcomes since the given
// time, for performance-drift checks.
func (s *Store) LabeledPairs(since time.Time) ([]drift.LabeledPrediction, error) {
	var rows []PredictionLog
	err := s.db.
		Where("actual_rto IS NOT NULL AND created_at >= ?", since).
		Order("created_at asc").
		Find(&rows).Error
	if err != nil {
		return nil, cerr.Wrap(cerr.KindTransientInfra, err, "query labeled predictions")
	}
	pairs := make([]drift.LabeledPrediction, len(rows))
	for i, r := range rows {
		pairs[i] = drift.LabeledPrediction{Predicted: r.PredictedRTO, Actual: *r.ActualRTO}
	}
	return pairs, nil
}

// CountSince counts distinct orders scored since the given time.
func (s *Store) CountSince(since time.Time) (int, error) {
	var n int64
	err := s.db.Model(&PredictionLog{}).
		Where("created_at >= ?", since).
		Distinct("order_id").
		Count(&n).Error
	if err != nil {
		return 0, cerr.Wrap(cerr.KindTransientInfra, err, "count new orders")
	}
	return int(n), nil
}

// TrainingData assembles a labelled training set from predictions with
// known delivery outcomes, closing the loop between serving and
// retraining.
func (s *Store) TrainingData(ctx context.Context) (*dataset.Dataset, error) {
	var rows []PredictionLog
	err := s.db.WithContext(ctx).
		Where("actual_rto IS NOT NULL").
		Order("created_at asc").
		Find(&rows).Error
	if err != nil {
		return nil, cerr.Wrap(cerr.KindTransientInfra, err, "query labelled predictions")
	}

	d := dataset.New()
	for _, r := range rows {
		var features map[string]float64
		if err := json.Unmarshal([]byte(r.Features), &features); err != nil || features == nil {
			continue
		}
		features[dataset.LabelColumn] = float64(*r.ActualRTO)
		d.AppendRow(r.OrderID, features)
	}
	return d, nil
}

// RecentFeatures reassembles the most recent logged feature maps into a
// columnar dataset for feature-drift checks, newest last. Rows with a
// corrupt feature payload are skipped.
func (s *Store) RecentFeatures(limit int) (*dataset.Dataset, error) {
	var rows []PredictionLog
	err := s.db.Order("created_at desc").Limit(limit).Find(&rows).Error
	if err != nil {
		return nil, cerr.Wrap(cerr.KindTransientInfra, err, "query recent predictions")
	}

	d := dataset.New()
	for i := len(rows) - 1; i >= 0; i-- {
		var features map[string]float64
		if err := json.Unmarshal([]byte(rows[i].Features), &features); err != nil {
			if s.log != nil {
				s.log.Warnw("skipping corrupt feature payload", "prediction_id", rows[i].ID)
			}
			continue
		}
		d.AppendRow(rows[i].OrderID, features)
	}
	return d, nil
}
