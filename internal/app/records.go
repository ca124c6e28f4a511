package app

import (
	"encoding/json"
	"fmt"
	"maps"

	"github.com/geocoder89/expertjobs/internal/directory"
	"github.com/geocoder89/expertjobs/internal/domain/isotime"
	"github.com/geocoder89/expertjobs/internal/domain/job"
)

func decodeJobs(recs []directory.Record) ([]job.Job, error) {
	out := make([]job.Job, 0, len(recs))
	for _, rec := range recs {
		rec = maps.Clone(rec)
		if ts, ok := isotime.Normalize(rec["createdAt"]); ok {
			rec["createdAt"] = ts.String()
		} else {
			delete(rec, "createdAt")
		}

		b, err := json.Marshal(rec)
		if err != nil {
			return nil, err
		}

		var j job.Job
		if err := json.Unmarshal(b, &j); err != nil {
			return nil, fmt.Errorf("decode job %v: %w", rec[directory.IDField], err)
		}
		out = append(out, j)
	}
	return out, nil
}

func jobRecord(j job.Job) (directory.Record, error) {
	j.ID = ""

	b, err := json.Marshal(j)
	if err != nil {
		return nil, err
	}

	var rec directory.Record
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, err
	}
	delete(rec, directory.IDField)
	return rec, nil
}
