package fixture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/parquet-go/parquet-go"
	"golang.org/x/sync/errgroup"

	"github.com/castdb/castdb/internal/storage"
)

// WriteParquet encodes rows as a single Parquet file.
func WriteParquet[T any](w io.Writer, rows []T) error {
	writer := parquet.NewGenericWriter[T](w)
	if _, err := writer.Write(rows); err != nil {
		return fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close parquet writer: %w", err)
	}
	return nil
}

// ReadParquet decodes every row of a Parquet file.
func ReadParquet[T any](data []byte) ([]T, error) {
	reader := parquet.NewGenericReader[T](bytes.NewReader(data))
	defer func() { _ = reader.Close() }()

	rows := make([]T, reader.NumRows())
	count, err := reader.Read(rows)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read parquet rows: %w", err)
	}
	return rows[:count], nil
}

// EncodeParquet returns one Parquet file per table.
func EncodeParquet(ds Dataset) (map[string][]byte, error) {
	files := make(map[string][]byte, len(Tables))
	for _, table := range Tables {
		buf := bytes.NewBuffer(nil)
		var err error
		switch table {
		case TableActors:
			err = WriteParquet(buf, ds.Actors)
		case TableMovies:
			err = WriteParquet(buf, ds.Movies)
		case TableCastings:
			err = WriteParquet(buf, ds.Castings)
		}
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", table, err)
		}
		files[table] = buf.Bytes()
	}
	return files, nil
}

// DecodeParquet rebuilds a dataset from the files EncodeParquet produced.
func DecodeParquet(files map[string][]byte) (Dataset, error) {
	var ds Dataset
	var err error
	for _, table := range Tables {
		data, ok := files[table]
		if !ok {
			return Dataset{}, fmt.Errorf("missing %s file", table)
		}
		switch table {
		case TableActors:
			ds.Actors, err = ReadParquet[Actor](data)
		case TableMovies:
			ds.Movies, err = ReadParquet[Movie](data)
		case TableCastings:
			ds.Castings, err = ReadParquet[Casting](data)
		}
		if err != nil {
			return Dataset{}, fmt.Errorf("decode %s: %w", table, err)
		}
	}
	return ds, nil
}

// Publish validates ds and uploads it to store under fixtures/<name>/.
func Publish(ctx context.Context, store storage.ObjectStore, name string, ds Dataset) ([]storage.ObjectInfo, error) {
	if store == nil {
		return nil, fmt.Errorf("object store is required")
	}
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	files, err := EncodeParquet(ds)
	if err != nil {
		return nil, err
	}

	infos := make([]storage.ObjectInfo, 0, len(Tables))
	for _, table := range Tables {
		key, err := storage.BuildFixturePath(name, table)
		if err != nil {
			return nil, err
		}
		data := files[table]
		info, err := store.Put(ctx, key, bytes.NewReader(data), int64(len(data)), storage.PutOptions{ContentType: storage.ContentTypeParquet})
		if err != nil {
			return nil, fmt.Errorf("publish %s: %w", table, err)
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// Unpublish deletes every object under fixtures/<name>/, including files of
// tables the current schema no longer has, and returns the deleted keys.
func Unpublish(ctx context.Context, store storage.ObjectStore, name string) ([]string, error) {
	if store == nil {
		return nil, fmt.Errorf("object store is required")
	}
	prefix, err := storage.BuildFixturePrefix(name)
	if err != nil {
		return nil, err
	}
	objects, err := store.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}
	deleted := make([]string, 0, len(objects))
	for _, object := range objects {
		if err := store.Delete(ctx, object.Key); err != nil {
			return deleted, fmt.Errorf("unpublish %s: %w", object.Key, err)
		}
		deleted = append(deleted, object.Key)
	}
	return deleted, nil
}

// FetchFiles downloads the raw Parquet files of a published dataset
// concurrently.
func FetchFiles(ctx context.Context, store storage.ObjectStore, name string) (map[string][]byte, error) {
	if store == nil {
		return nil, fmt.Errorf("object store is required")
	}

	payloads := make([][]byte, len(Tables))
	group, groupCtx := errgroup.WithContext(ctx)
	for index, table := range Tables {
		key, err := storage.BuildFixturePath(name, table)
		if err != nil {
			return nil, err
		}
		group.Go(func() error {
			reader, err := store.Get(groupCtx, key)
			if err != nil {
				return fmt.Errorf("get %s: %w", key, err)
			}
			defer func() { _ = reader.Close() }()
			data, err := io.ReadAll(reader)
			if err != nil {
				return fmt.Errorf("read %s: %w", key, err)
			}
			payloads[index] = data
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	files := make(map[string][]byte, len(Tables))
	for index, table := range Tables {
		files[table] = payloads[index]
	}
	return files, nil
}

// Fetch downloads and decodes a published dataset.
func Fetch(ctx context.Context, store storage.ObjectStore, name string) (Dataset, error) {
	files, err := FetchFiles(ctx, store, name)
	if err != nil {
		return Dataset{}, err
	}
	return DecodeParquet(files)
}
