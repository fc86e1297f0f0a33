package pipeline

import (
	"context"
	"fmt"

	"github.com/ruslano69/geoimport/pkg/source"
)

func (p *Pipeline) download(ctx context.Context, st State) (State, error) {
	raw, err := p.source.Download(ctx, st.Kind, p.population)
	if err != nil {
		return st, err
	}
	st.Raw = raw
	return st, nil
}

func (p *Pipeline) ensureTable(ctx context.Context, st State) (State, error) {
	desc, err := p.backend.EnsureTable(ctx, st.Kind)
	if err != nil {
		return st, err
	}
	st.Table = desc
	return st, nil
}

func (p *Pipeline) parse(ctx context.Context, st State) (State, error) {
	ds, err := source.Parse(st.Raw)
	if err != nil {
		return st, err
	}
	if ds.Kind != st.Kind {
		return st, fmt.Errorf("parsed %s records, expected %s", ds.Kind, st.Kind)
	}
	st.Dataset = ds
	st.Raw.Data = nil // больше не нужен, записи уже разобраны
	return st, nil
}

func (p *Pipeline) insert(ctx context.Context, st State) (State, error) {
	n, err := p.backend.Insert(ctx, st.Kind, st.Dataset.Records, p.progress(st.Kind, st.Table.Name))
	if err != nil {
		return st, err
	}
	st.Loaded = n
	return st, nil
}
