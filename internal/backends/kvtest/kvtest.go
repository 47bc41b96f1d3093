// Package kvtest holds the behaviour every ports.KV backend must share. Backend test suites
// embed Suite and set KV in SetupSuite.
package kvtest

import (
	"clusterdir/internal/ports"
	"clusterdir/internal/types"
	"context"
	"errors"
	"fmt"

	"github.com/stretchr/testify/suite"
)

type Suite struct {
	suite.Suite

	KV ports.KV
	// NestedDirs is set for backends whose List reports sub directories with a trailing slash.
	NestedDirs bool

	seq int
}

// Dir returns a fresh directory name so tests sharing one backend never see each other.
func (s *Suite) Dir() string {
	s.seq++
	return fmt.Sprintf("kvtest-%d", s.seq)
}

func (s *Suite) TestReadMissing() {
	_, err := s.KV.Read(context.Background(), s.Dir()+"/missing")
	s.Error(err)
	s.True(errors.Is(err, types.ErrNotFound), "got %v", err)
}

func (s *Suite) TestWriteReplacesRecord() {
	ctx := context.Background()
	path := s.Dir() + "/doc"

	s.Require().NoError(s.KV.Write(ctx, path, types.Record{"a": "1", "b": `{"x":true}`}))
	rec, err := s.KV.Read(ctx, path)
	s.Require().NoError(err)
	s.Equal(types.Record{"a": "1", "b": `{"x":true}`}, rec)

	s.Require().NoError(s.KV.Write(ctx, path, types.Record{"a": "3"}))
	rec, err = s.KV.Read(ctx, path)
	s.Require().NoError(err)
	s.Equal(types.Record{"a": "3"}, rec)
}

func (s *Suite) TestEmptyRecordExists() {
	ctx := context.Background()
	path := s.Dir() + "/empty"

	s.Require().NoError(s.KV.Write(ctx, path, types.Record{}))
	rec, err := s.KV.Read(ctx, path)
	s.Require().NoError(err)
	s.Empty(rec)
}

func (s *Suite) TestDelete() {
	ctx := context.Background()
	dir := s.Dir()

	s.Require().NoError(s.KV.Write(ctx, dir+"/doc", types.Record{"a": "1"}))
	s.Require().NoError(s.KV.Delete(ctx, dir+"/doc"))
	_, err := s.KV.Read(ctx, dir+"/doc")
	s.True(errors.Is(err, types.ErrNotFound), "got %v", err)

	s.NoError(s.KV.Delete(ctx, dir+"/never-written"))

	keys, err := s.KV.List(ctx, dir)
	s.Require().NoError(err)
	s.Empty(keys)
}

func (s *Suite) TestList() {
	ctx := context.Background()
	dir := s.Dir()

	for _, p := range []string{"b", "a", "sub/c"} {
		s.Require().NoError(s.KV.Write(ctx, dir+"/"+p, types.Record{"v": p}))
	}
	keys, err := s.KV.List(ctx, dir)
	s.Require().NoError(err)
	if s.NestedDirs {
		s.Equal([]string{"a", "b", "sub/"}, keys)
	} else {
		s.Equal([]string{"a", "b"}, keys)
	}

	keys, err = s.KV.List(ctx, s.Dir())
	s.Require().NoError(err)
	s.Empty(keys)
}

func (s *Suite) TestTransact() {
	tx, ok := s.KV.(ports.Transactional)
	if !ok {
		s.T().Skip("backend is not transactional")
	}
	ctx := context.Background()
	dir := s.Dir()
	s.Require().NoError(s.KV.Write(ctx, dir+"/old", types.Record{"v": "old"}))

	err := tx.Transact(ctx,
		ports.WriteOp(dir+"/x", types.Record{"v": "x"}),
		ports.WriteOp(dir+"/y", types.Record{}),
		ports.DeleteOp(dir+"/old"),
	)
	s.Require().NoError(err)

	rec, err := s.KV.Read(ctx, dir+"/x")
	s.Require().NoError(err)
	s.Equal(types.Record{"v": "x"}, rec)
	rec, err = s.KV.Read(ctx, dir+"/y")
	s.Require().NoError(err)
	s.Empty(rec)
	_, err = s.KV.Read(ctx, dir+"/old")
	s.True(errors.Is(err, types.ErrNotFound), "got %v", err)
}
