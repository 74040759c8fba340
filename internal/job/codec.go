// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package job

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidJob 无法解码或缺少必填字段；调用方记录日志后丢弃
var ErrInvalidJob = errors.New("invalid job")

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("hash32", func(fl validator.FieldLevel) bool {
		_, err := ParseHash(fl.Field().String())
		return err == nil
	})
	return v
}

// Decode 按 "type" 判别字段把队列记录解码为 Job 并校验必填字段
func Decode(data []byte) (*Job, error) {
	var head struct {
		Type Kind `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJob, err)
	}
	switch head.Type {
	case KindPayment:
		var p PaymentJob
		if err := decodeInto(data, &p); err != nil {
			return nil, err
		}
		return &Job{Kind: KindPayment, Payment: &p}, nil
	case KindPayload:
		var p SettlePayloadJob
		if err := decodeInto(data, &p); err != nil {
			return nil, err
		}
		return &Job{Kind: KindPayload, Payload: &p}, nil
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidJob, head.Type)
	}
}

func decodeInto(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidJob, err)
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidJob, err)
	}
	return nil
}

// Encode 序列化为队列记录
func Encode(j *Job) ([]byte, error) {
	switch j.Kind {
	case KindPayment:
		if j.Payment == nil {
			return nil, fmt.Errorf("%w: payment job without body", ErrInvalidJob)
		}
		return json.Marshal(j.Payment)
	case KindPayload:
		if j.Payload == nil {
			return nil, fmt.Errorf("%w: payload job without body", ErrInvalidJob)
		}
		return json.Marshal(j.Payload)
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidJob, j.Kind)
	}
}
