package kernel

import (
	"github.com/j1sk1ss/cdbms/internal/container"
)

// rowLogic is the closed set of row-processing variants the table scanner
// dispatches against a matched row: a match over a tag rather than an
// open-world function pointer.
type rowLogic int

const (
	logicGet rowLogic = iota
	logicInsert
	logicDelete
)

// processTable scans table starting at exp.Offset, evaluating exp against
// every live row and applying logic to each match, until the scan runs
// past the table's last written row or exp.Limit matches (when >= 0) have
// been processed. Rows whose first byte is PageEmpty are skipped, not
// treated as end of table.
func processTable(table *container.Table, workerID int, exp *Expression, logic rowLogic, data []byte, answer *Answer) error {
	index := exp.Offset
	processed := 0

	for {
		row, err := table.GetRaw(workerID, index)
		if err != nil {
			break
		}

		if row[0] != container.PageEmpty && exp.evaluate(row) {
			if exp.Limit >= 0 && processed >= exp.Limit {
				break
			}
			processed++

			switch logic {
			case logicGet:
				answer.Body = append(answer.Body, row...)
				answer.Size = len(answer.Body)
			case logicInsert:
				if err := table.Insert(workerID, index, data); err != nil {
					return err
				}
			case logicDelete:
				if err := table.Delete(workerID, index); err != nil {
					return err
				}
			}
		}

		index++
	}

	return nil
}
