package engine

import (
	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
)

var (
	ErrEvaluateSchemaFunction = errors.New("schema function evaluation failed", j.C("ERR_5f3a9c01be772d14"))
	ErrInvalidTimeFormat      = errors.New("invalid time format", j.C("ERR_8e12bb40d1c6a9f3"))
	ErrUnknownEventType       = errors.New("unknown event type", j.C("ERR_0a77cfe2634d18bb"))
	ErrUnknownOperation       = errors.New("unknown operation for event type", j.C("ERR_c3d94f1a807e52e6"))
	ErrEventNotFound          = errors.New("event not found", j.C("ERR_74b8a20cf95d31e7"))
	ErrEventNotDue            = errors.New("delay event is not due yet", j.C("ERR_6a0f25c8d37be914"))
	ErrUnitNotFound           = errors.New("unit not found", j.C("ERR_29c6e80b4f13a7d2"))
	ErrWorkflowNotFound       = errors.New("workflow not found", j.C("ERR_b1f04a7d3c98e625"))
	ErrDocumentNotFound       = errors.New("document not found", j.C("ERR_4d21c6f98a07be53"))
	ErrTaskNotFound           = errors.New("task not found", j.C("ERR_e86f13b05d92ca47"))
	ErrUserNotFound           = errors.New("user not found in directory", j.C("ERR_97ad45e01b38cf26"))
	ErrAlreadyMember          = errors.New("user is already a member of the unit", j.C("ERR_3bc82a96e47f01d5"))
	ErrAlreadyHead            = errors.New("user is already a head of the unit", j.C("ERR_d50e794cb1a6328f"))
	ErrExclusiveUnits         = errors.New("user cannot belong to exclusive units at the same time", j.C("ERR_62f9d08e5a41c37b"))
	ErrAmbiguousIpn           = errors.New("personal code resolves to more than one user", j.C("ERR_fa3061d79c25e84b"))
	ErrIpnNotFound            = errors.New("personal code resolves to no user", j.C("ERR_2e98c4061dab57f3"))
	ErrEmptyTaskList          = errors.New("task id list must not be empty", j.C("ERR_1c59fe26b08d47a3"))
	ErrStatusNotConfigured    = errors.New("status is not configured on the parent workflow template", j.C("ERR_80d3b65f27a1c94e"))
	ErrUnknownProvider        = errors.New("unknown request provider", j.C("ERR_ab640c91f75e23d8"))
	ErrContentTypeMismatch    = errors.New("uploaded file content type mismatch", j.C("ERR_57e1fa84d20b963c"))
)
