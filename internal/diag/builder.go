package diag

import "tlsify/internal/source"

func New(sev Severity, code Code, msg string) Diagnostic {
	return Diagnostic{
		Severity: sev,
		Code:     code,
		Message:  msg,
	}
}

func (d Diagnostic) At(path string, offset uint32) Diagnostic {
	d.Path = path
	d.Offset = offset
	return d
}

func (d Diagnostic) WithPos(pos source.LineCol) Diagnostic {
	d.Pos = pos
	return d
}

func (d Diagnostic) With(key, value string) Diagnostic {
	d.Fields = append(d.Fields, Field{Key: key, Value: value})
	return d
}
