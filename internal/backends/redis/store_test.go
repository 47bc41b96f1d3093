package redis

import (
	"clusterdir/internal/backends/kvtest"
	"clusterdir/internal/types"
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"
)

type StoreTestSuite struct {
	kvtest.Suite

	mr    *miniredis.Miniredis
	store *Store
}

func TestStoreTestSuite(t *testing.T) {
	suite.Run(t, new(StoreTestSuite))
}

func (s *StoreTestSuite) SetupSuite() {
	s.mr = miniredis.RunT(s.T())
	cli := redis.NewClient(&redis.Options{Addr: s.mr.Addr()})
	s.store = NewStore(cli, "clusterdir:")
	s.KV = s.store
	s.NestedDirs = true
}

func (s *StoreTestSuite) TearDownSuite() {
	_ = s.store.Close()
}

func (s *StoreTestSuite) TestKeysCarryPrefix() {
	ctx := context.Background()
	s.Require().NoError(s.store.Write(ctx, "channels/beta", types.Record{"value": "[]"}))
	s.True(s.mr.Exists("clusterdir:channels/beta"))
	s.Equal("[]", s.mr.HGet("clusterdir:channels/beta", "value"))
}

func (s *StoreTestSuite) TestEmptyMarkerIsHidden() {
	ctx := context.Background()
	s.Require().NoError(s.store.Write(ctx, "marker/doc", types.Record{}))
	s.True(s.mr.Exists("clusterdir:marker/doc"))

	rec, err := s.store.Read(ctx, "marker/doc")
	s.Require().NoError(err)
	s.NotContains(rec, emptyMarkerField)
}

func (s *StoreTestSuite) TestEscapeGlob() {
	s.Equal(`a\*b\?c\[d\]`, escapeGlob("a*b?c[d]"))
	s.Equal("plain/path", escapeGlob("plain/path"))
}
