package tsurugipb

import "google.golang.org/protobuf/encoding/protowire"

// Every response message reserves field 90 for the ServiceError variant
// (spec §7 kind 7); it is absent on success.
const fieldError = 90

func (e *ServiceError) marshal() []byte {
	w := &msgWriter{}
	w.stringField(1, e.Code)
	w.stringField(2, e.Category)
	w.int64Field(3, int64(e.CategoryNumber))
	w.stringField(4, e.Message)
	return w.bytes()
}

func unmarshalServiceError(data []byte) (*ServiceError, error) {
	e := &ServiceError{}
	r := msgReader{data: data}
	err := r.each(func(num protowire.Number, typ protowire.Type, data []byte) (int, error) {
		switch num {
		case 1:
			s, n := protowire.ConsumeString(data)
			e.Code = s
			return n, nil
		case 2:
			s, n := protowire.ConsumeString(data)
			e.Category = s
			return n, nil
		case 3:
			v, n := protowire.ConsumeVarint(data)
			e.CategoryNumber = int32(protowire.DecodeZigZag(v))
			return n, nil
		case 4:
			s, n := protowire.ConsumeString(data)
			e.Message = s
			return n, nil
		}
		return -1, nil
	})
	return e, err
}

// ---- Parameter / Placeholder -------------------------------------------

func marshalParameters(params []Parameter) []byte {
	w := &msgWriter{}
	for i := range params {
		w.messageField(1, params[i].marshal())
	}
	return w.bytes()
}

func (p *Placeholder) marshal() []byte {
	w := &msgWriter{}
	w.stringField(1, p.Name)
	w.stringField(2, p.TypeName)
	return w.bytes()
}

// ---- Prepare --------------------------------------------------------------

func (r *PrepareRequest) Marshal() []byte {
	w := &msgWriter{}
	w.stringField(1, r.SQL)
	for i := range r.Placeholders {
		w.messageField(2, r.Placeholders[i].marshal())
	}
	return w.bytes()
}

func UnmarshalPrepareResponse(data []byte) (*PrepareResponse, error) {
	resp := &PrepareResponse{}
	r := msgReader{data: data}
	err := r.each(func(num protowire.Number, typ protowire.Type, data []byte) (int, error) {
		switch num {
		case 1:
			v, n := protowire.ConsumeVarint(data)
			resp.Handle = v
			return n, nil
		case 2:
			v, n := protowire.ConsumeVarint(data)
			resp.HasResultRecords = v != 0
			return n, nil
		case fieldError:
			b, n := protowire.ConsumeBytes(data)
			e, uerr := unmarshalServiceError(b)
			if uerr != nil {
				return n, uerr
			}
			resp.Error = e
			return n, nil
		}
		return -1, nil
	})
	return resp, err
}

// ---- Begin ------------------------------------------------------------

func (r *BeginRequest) Marshal() []byte {
	w := &msgWriter{}
	w.int64Field(1, int64(r.Type))
	w.stringField(2, r.Label)
	for _, wp := range r.WritePreserve {
		w.stringField(3, wp)
	}
	w.int64Field(4, int64(r.Priority))
	return w.bytes()
}

func UnmarshalBeginResponse(data []byte) (*BeginResponse, error) {
	resp := &BeginResponse{}
	r := msgReader{data: data}
	err := r.each(func(num protowire.Number, typ protowire.Type, data []byte) (int, error) {
		switch num {
		case 1:
			v, n := protowire.ConsumeVarint(data)
			resp.Handle = v
			return n, nil
		case fieldError:
			b, n := protowire.ConsumeBytes(data)
			e, uerr := unmarshalServiceError(b)
			if uerr != nil {
				return n, uerr
			}
			resp.Error = e
			return n, nil
		}
		return -1, nil
	})
	return resp, err
}

// ---- Execute statement --------------------------------------------------

func (r *ExecuteStatementRequest) Marshal() []byte {
	w := &msgWriter{}
	w.uint64Field(1, r.TransactionHandle)
	w.stringField(2, r.SQL)
	return w.bytes()
}

func (r *PreparedExecuteRequest) Marshal() []byte {
	w := &msgWriter{}
	w.uint64Field(1, r.TransactionHandle)
	w.uint64Field(2, r.PreparedHandle)
	w.messageField(3, marshalParameters(r.Parameters))
	return w.bytes()
}

func UnmarshalSqlExecuteResult(data []byte) (*SqlExecuteResult, error) {
	resp := &SqlExecuteResult{}
	r := msgReader{data: data}
	err := r.each(func(num protowire.Number, typ protowire.Type, data []byte) (int, error) {
		switch num {
		case 1:
			v, n := protowire.ConsumeVarint(data)
			resp.InsertedRows = int64(v)
			return n, nil
		case 2:
			v, n := protowire.ConsumeVarint(data)
			resp.UpdatedRows = int64(v)
			return n, nil
		case 3:
			v, n := protowire.ConsumeVarint(data)
			resp.DeletedRows = int64(v)
			return n, nil
		case 4:
			v, n := protowire.ConsumeVarint(data)
			resp.MergedRows = int64(v)
			return n, nil
		case fieldError:
			b, n := protowire.ConsumeBytes(data)
			e, uerr := unmarshalServiceError(b)
			if uerr != nil {
				return n, uerr
			}
			resp.Error = e
			return n, nil
		}
		return -1, nil
	})
	return resp, err
}

// ---- Execute query (streaming) ------------------------------------------

func (r *ExecuteQueryRequest) Marshal() []byte {
	w := &msgWriter{}
	w.uint64Field(1, r.TransactionHandle)
	w.stringField(2, r.SQL)
	return w.bytes()
}

func (r *PreparedQueryRequest) Marshal() []byte {
	w := &msgWriter{}
	w.uint64Field(1, r.TransactionHandle)
	w.uint64Field(2, r.PreparedHandle)
	w.messageField(3, marshalParameters(r.Parameters))
	return w.bytes()
}

func (c *Column) marshal() []byte {
	w := &msgWriter{}
	w.stringField(1, c.Name)
	w.stringField(2, c.TypeName)
	w.boolField(3, c.Nullable)
	return w.bytes()
}

func unmarshalColumn(data []byte) (Column, error) {
	var c Column
	r := msgReader{data: data}
	err := r.each(func(num protowire.Number, typ protowire.Type, data []byte) (int, error) {
		switch num {
		case 1:
			s, n := protowire.ConsumeString(data)
			c.Name = s
			return n, nil
		case 2:
			s, n := protowire.ConsumeString(data)
			c.TypeName = s
			return n, nil
		case 3:
			v, n := protowire.ConsumeVarint(data)
			c.Nullable = v != 0
			return n, nil
		}
		return -1, nil
	})
	return c, err
}

func UnmarshalExecuteQueryResponse(data []byte) (*ExecuteQueryResponse, error) {
	resp := &ExecuteQueryResponse{}
	r := msgReader{data: data}
	err := r.each(func(num protowire.Number, typ protowire.Type, data []byte) (int, error) {
		switch num {
		case 1:
			s, n := protowire.ConsumeString(data)
			resp.DataChannelName = s
			return n, nil
		case 2:
			b, n := protowire.ConsumeBytes(data)
			c, uerr := unmarshalColumn(b)
			if uerr != nil {
				return n, uerr
			}
			resp.Columns = append(resp.Columns, c)
			return n, nil
		case fieldError:
			b, n := protowire.ConsumeBytes(data)
			e, uerr := unmarshalServiceError(b)
			if uerr != nil {
				return n, uerr
			}
			resp.Error = e
			return n, nil
		}
		return -1, nil
	})
	return resp, err
}

// ---- Commit / Rollback / Dispose -----------------------------------------

func (r *CommitRequest) Marshal() []byte {
	w := &msgWriter{}
	w.uint64Field(1, r.TransactionHandle)
	w.int64Field(2, int64(r.Notification))
	w.boolField(3, r.AutoDispose)
	return w.bytes()
}

func (r *RollbackRequest) Marshal() []byte {
	w := &msgWriter{}
	w.uint64Field(1, r.TransactionHandle)
	return w.bytes()
}

func (r *DisposeTransactionRequest) Marshal() []byte {
	w := &msgWriter{}
	w.uint64Field(1, r.TransactionHandle)
	return w.bytes()
}

func (r *DisposePreparedStatementRequest) Marshal() []byte {
	w := &msgWriter{}
	w.uint64Field(1, r.Handle)
	w.boolField(2, r.HasResultRecords)
	return w.bytes()
}

func (r *GetTransactionErrorInfoRequest) Marshal() []byte {
	w := &msgWriter{}
	w.uint64Field(1, r.TransactionHandle)
	return w.bytes()
}

// UnmarshalResultOnly decodes the common "result-only" response shared by
// commit/rollback/dispose/execute-statement acknowledgements: present only
// to surface a ServiceError, if any.
func UnmarshalResultOnly(data []byte) (*ServiceError, error) {
	var svcErr *ServiceError
	r := msgReader{data: data}
	err := r.each(func(num protowire.Number, typ protowire.Type, data []byte) (int, error) {
		if num == fieldError {
			b, n := protowire.ConsumeBytes(data)
			e, uerr := unmarshalServiceError(b)
			if uerr != nil {
				return n, uerr
			}
			svcErr = e
			return n, nil
		}
		return -1, nil
	})
	return svcErr, err
}

func UnmarshalTransactionErrorInfoResponse(data []byte) (*TransactionErrorInfoResponse, error) {
	resp := &TransactionErrorInfoResponse{}
	r := msgReader{data: data}
	err := r.each(func(num protowire.Number, typ protowire.Type, data []byte) (int, error) {
		switch num {
		case 1:
			v, n := protowire.ConsumeVarint(data)
			resp.Status = int32(v)
			return n, nil
		case fieldError:
			b, n := protowire.ConsumeBytes(data)
			e, uerr := unmarshalServiceError(b)
			if uerr != nil {
				return n, uerr
			}
			resp.Error = e
			return n, nil
		}
		return -1, nil
	})
	return resp, err
}

// ---- List tables / table metadata ----------------------------------------

func UnmarshalListTablesResponse(data []byte) (*ListTablesResponse, error) {
	resp := &ListTablesResponse{}
	r := msgReader{data: data}
	err := r.each(func(num protowire.Number, typ protowire.Type, data []byte) (int, error) {
		switch num {
		case 1:
			s, n := protowire.ConsumeString(data)
			resp.TableNames = append(resp.TableNames, s)
			return n, nil
		case fieldError:
			b, n := protowire.ConsumeBytes(data)
			e, uerr := unmarshalServiceError(b)
			if uerr != nil {
				return n, uerr
			}
			resp.Error = e
			return n, nil
		}
		return -1, nil
	})
	return resp, err
}

func (r *GetTableMetadataRequest) Marshal() []byte {
	w := &msgWriter{}
	w.stringField(1, r.TableName)
	return w.bytes()
}

func UnmarshalTableMetadataResponse(data []byte) (*TableMetadataResponse, error) {
	resp := &TableMetadataResponse{}
	r := msgReader{data: data}
	err := r.each(func(num protowire.Number, typ protowire.Type, data []byte) (int, error) {
		switch num {
		case 1:
			s, n := protowire.ConsumeString(data)
			resp.TableName = s
			return n, nil
		case 2:
			b, n := protowire.ConsumeBytes(data)
			c, uerr := unmarshalColumn(b)
			if uerr != nil {
				return n, uerr
			}
			resp.Columns = append(resp.Columns, c)
			return n, nil
		case fieldError:
			b, n := protowire.ConsumeBytes(data)
			e, uerr := unmarshalServiceError(b)
			if uerr != nil {
				return n, uerr
			}
			resp.Error = e
			return n, nil
		}
		return -1, nil
	})
	return resp, err
}

// ---- Explain --------------------------------------------------------------

func (r *ExplainRequest) Marshal() []byte {
	w := &msgWriter{}
	w.stringField(1, r.SQL)
	return w.bytes()
}

func (r *ExplainByPreparedStatementRequest) Marshal() []byte {
	w := &msgWriter{}
	w.uint64Field(1, r.PreparedHandle)
	w.messageField(2, marshalParameters(r.Parameters))
	return w.bytes()
}

func UnmarshalExplainResponse(data []byte) (*ExplainResponse, error) {
	resp := &ExplainResponse{}
	r := msgReader{data: data}
	err := r.each(func(num protowire.Number, typ protowire.Type, data []byte) (int, error) {
		switch num {
		case 1:
			s, n := protowire.ConsumeString(data)
			resp.FormatID = s
			return n, nil
		case 2:
			v, n := protowire.ConsumeVarint(data)
			resp.FormatVersion = v
			return n, nil
		case 3:
			s, n := protowire.ConsumeString(data)
			resp.Contents = s
			return n, nil
		case fieldError:
			b, n := protowire.ConsumeBytes(data)
			e, uerr := unmarshalServiceError(b)
			if uerr != nil {
				return n, uerr
			}
			resp.Error = e
			return n, nil
		}
		return -1, nil
	})
	return resp, err
}

// ---- Large object ----------------------------------------------------------

func (ref *LargeObjectReference) marshal(w *msgWriter, base protowire.Number) {
	w.int64Field(base, int64(ref.Provider))
	w.uint64Field(base+1, ref.ObjectID)
}

func (r *OpenLOBRequest) Marshal() []byte {
	w := &msgWriter{}
	w.uint64Field(1, r.TransactionHandle)
	r.Reference.marshal(w, 2)
	return w.bytes()
}

func (r *CopyLOBToRequest) Marshal() []byte {
	w := &msgWriter{}
	w.uint64Field(1, r.TransactionHandle)
	r.Reference.marshal(w, 2)
	w.stringField(4, r.DestinationPath)
	return w.bytes()
}

func UnmarshalLOBPathResponse(data []byte) (*LOBPathResponse, error) {
	resp := &LOBPathResponse{}
	r := msgReader{data: data}
	err := r.each(func(num protowire.Number, typ protowire.Type, data []byte) (int, error) {
		switch num {
		case 1:
			s, n := protowire.ConsumeString(data)
			resp.ServerPath = s
			return n, nil
		case fieldError:
			b, n := protowire.ConsumeBytes(data)
			e, uerr := unmarshalServiceError(b)
			if uerr != nil {
				return n, uerr
			}
			resp.Error = e
			return n, nil
		}
		return -1, nil
	})
	return resp, err
}
