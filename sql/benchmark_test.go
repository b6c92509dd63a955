package sql

import (
	"testing"

	"github.com/nickyhof/dbaccess/core"
)

// BenchmarkRewrite benchmarks placeholder rewriting
func BenchmarkRewrite(b *testing.B) {
	query := "SELECT * FROM cat WHERE id = :id AND name = :name AND weight > ? AND born::date < :born"
	values := []core.Value{core.IntValue(7), core.TextValue("O'Brien"), core.DoubleValue(4.5), core.TextValue("2020-01-01")}

	b.Run("CountParams", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			CountParams(query)
		}
	})
	b.Run("Normalize", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			Normalize(query, DollarNumbers)
		}
	})
	b.Run("Inline", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			if _, err := Inline(query, values); err != nil {
				b.Fatalf("Inline error: %v", err)
			}
		}
	})
	b.Run("MultiRow", func(b *testing.B) {
		insert := "INSERT INTO cat (id, name, weight) VALUES (:id, :name, :weight)"
		for i := 0; i < b.N; i++ {
			if _, err := MultiRow(insert, 100, QuestionMarks); err != nil {
				b.Fatalf("MultiRow error: %v", err)
			}
		}
	})
}
