package service

import "context"

// testTxRepos hands the same mocks back for every repository accessor so
// transactional service paths can be exercised without a database.
type testTxRepos struct {
	chunks        ChunkRepositoryInterface
	relationships RelationshipRepositoryInterface
	jobs          JobRepositoryInterface
	lineage       LineageRepositoryInterface
}

func (t *testTxRepos) Chunks() ChunkRepositoryInterface {
	return t.chunks
}

func (t *testTxRepos) Relationships() RelationshipRepositoryInterface {
	return t.relationships
}

func (t *testTxRepos) Jobs() JobRepositoryInterface {
	return t.jobs
}

func (t *testTxRepos) Lineage() LineageRepositoryInterface {
	return t.lineage
}

type testTxRunner struct {
	repos  TxRepositories
	called bool
}

func (t *testTxRunner) WithTx(ctx context.Context, fn func(repos TxRepositories) error) error {
	t.called = true
	return fn(t.repos)
}
