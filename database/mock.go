package database

import "github.com/sisu-network/xeyes/types"

type MockDb struct {
	InitFunc       func() error
	CloseFunc      func() error
	SaveResultFunc func(record *types.TrackRecord) error
	LoadResultFunc func(sourceTxHash string) (*types.TrackRecord, error)
}

func (mock *MockDb) Init() error {
	if mock.InitFunc != nil {
		return mock.InitFunc()
	}

	return nil
}

func (mock *MockDb) Close() error {
	if mock.CloseFunc != nil {
		return mock.CloseFunc()
	}

	return nil
}

func (mock *MockDb) SaveResult(record *types.TrackRecord) error {
	if mock.SaveResultFunc != nil {
		return mock.SaveResultFunc(record)
	}

	return nil
}

func (mock *MockDb) LoadResult(sourceTxHash string) (*types.TrackRecord, error) {
	if mock.LoadResultFunc != nil {
		return mock.LoadResultFunc(sourceTxHash)
	}

	return nil, nil
}
