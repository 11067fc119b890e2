package fixture

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

//go:embed sample.yaml
var sampleYAML []byte

// yamlDocument is the authoring format: castings are written as an ordered
// cast list on each movie, and explicit castings may be listed separately.
type yamlDocument struct {
	Actors   []Actor     `yaml:"actors"`
	Movies   []yamlMovie `yaml:"movies"`
	Castings []Casting   `yaml:"castings"`
}

type yamlMovie struct {
	Movie `yaml:",inline"`
	Cast  []int64 `yaml:"cast"`
}

// LoadYAML decodes and validates a dataset.
func LoadYAML(r io.Reader) (Dataset, error) {
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)

	var doc yamlDocument
	if err := decoder.Decode(&doc); err != nil {
		return Dataset{}, fmt.Errorf("decode fixture yaml: %w", err)
	}

	ds := Dataset{
		Actors:   doc.Actors,
		Movies:   make([]Movie, 0, len(doc.Movies)),
		Castings: append([]Casting(nil), doc.Castings...),
	}
	for _, movie := range doc.Movies {
		ds.Movies = append(ds.Movies, movie.Movie)
		for index, actorID := range movie.Cast {
			ds.Castings = append(ds.Castings, Casting{
				MovieID: movie.ID,
				ActorID: actorID,
				Ord:     int64(index + 1),
			})
		}
	}

	if err := ds.Validate(); err != nil {
		return Dataset{}, err
	}
	return ds, nil
}

// Sample returns the embedded sample dataset.
func Sample() Dataset {
	ds, err := LoadYAML(bytes.NewReader(sampleYAML))
	if err != nil {
		panic(fmt.Sprintf("embedded sample fixture: %v", err))
	}
	return ds
}
