package mock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/arkivo-id/wa-meter/internal/model"
)

// MetadataStoreMock mocks the MetadataStore interface
type MetadataStoreMock struct {
	mock.Mock
}

// SaveRecord mocks the SaveRecord method
func (m *MetadataStoreMock) SaveRecord(ctx context.Context, rec model.MessageRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

// BulkSaveRecords mocks the BulkSaveRecords method
func (m *MetadataStoreMock) BulkSaveRecords(ctx context.Context, recs []model.MessageRecord) error {
	args := m.Called(ctx, recs)
	return args.Error(0)
}

// QueryMessages mocks the QueryMessages method
func (m *MetadataStoreMock) QueryMessages(ctx context.Context, filter model.MessageFilter) ([]model.MessageMetadata, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.MessageMetadata), args.Error(1)
}

// ChatSummaries mocks the ChatSummaries method
func (m *MetadataStoreMock) ChatSummaries(ctx context.Context) ([]model.ChatSummary, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.ChatSummary), args.Error(1)
}

// ListContacts mocks the ListContacts method
func (m *MetadataStoreMock) ListContacts(ctx context.Context) ([]model.Contact, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Contact), args.Error(1)
}

// Stats mocks the Stats method
func (m *MetadataStoreMock) Stats(ctx context.Context) (*model.StoreStats, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.StoreStats), args.Error(1)
}

// Close mocks the Close method
func (m *MetadataStoreMock) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
