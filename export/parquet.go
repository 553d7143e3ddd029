package export

import (
	"math"

	parquetbuffer "github.com/xitongsys/parquet-go-source/buffer"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"
)

type sampleParquetRow struct {
	Seq          int64   `parquet:"name=seq, type=INT64"`
	TSUTCISO     string  `parquet:"name=ts_utc_iso, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	ElapsedS     float64 `parquet:"name=elapsed_s, type=DOUBLE"`
	LatDeg       float64 `parquet:"name=lat_deg, type=DOUBLE"`
	LonDeg       float64 `parquet:"name=lon_deg, type=DOUBLE"`
	AltitudeM    float64 `parquet:"name=altitude_m, type=DOUBLE"`
	HRBPM        float64 `parquet:"name=hr_bpm, type=DOUBLE"`
	CadenceRPM   float64 `parquet:"name=cadence_rpm, type=DOUBLE"`
	SpeedMPS     float64 `parquet:"name=speed_mps, type=DOUBLE"`
	DistanceM    float64 `parquet:"name=distance_m, type=DOUBLE"`
	TemperatureC float64 `parquet:"name=temperature_c, type=DOUBLE"`
	HasPosition  bool    `parquet:"name=has_position, type=BOOLEAN"`
}

func marshalSamplesParquet(samples []Sample) ([]byte, error) {
	fw := parquetbuffer.NewBufferFile()
	if err := writeSamplesParquet(fw, samples); err != nil {
		return nil, err
	}
	return append([]byte(nil), fw.Bytes()...), nil
}

func writeSamplesParquetFile(path string, samples []Sample) error {
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return err
	}
	return writeSamplesParquet(fw, samples)
}

// writeSamplesParquet writes all samples and closes fw.
func writeSamplesParquet(fw source.ParquetFile, samples []Sample) error {
	pw, err := writer.NewParquetWriter(fw, new(sampleParquetRow), 4)
	if err != nil {
		_ = fw.Close()
		return err
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	for _, s := range samples {
		row := sampleParquetRow{
			Seq:          int64(s.Seq),
			TSUTCISO:     s.TSUTCISO,
			ElapsedS:     valueOrNaN(s.ElapsedS),
			LatDeg:       valueOrNaN(s.LatDeg),
			LonDeg:       valueOrNaN(s.LonDeg),
			AltitudeM:    valueOrNaN(s.AltitudeM),
			HRBPM:        valueOrNaN(s.HRBPM),
			CadenceRPM:   valueOrNaN(s.CadenceRPM),
			SpeedMPS:     valueOrNaN(s.SpeedMPS),
			DistanceM:    valueOrNaN(s.DistanceM),
			TemperatureC: valueOrNaN(s.TemperatureC),
			HasPosition:  s.HasPosition,
		}
		if err := pw.Write(row); err != nil {
			_ = pw.WriteStop()
			_ = fw.Close()
			return err
		}
	}
	if err := pw.WriteStop(); err != nil {
		_ = fw.Close()
		return err
	}
	return fw.Close()
}

func valueOrNaN(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}
